package infra

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ObjectStore persists a blob and returns the URL it is publicly served from.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// SupabaseStore talks to a Supabase-compatible storage REST API.
// Every upload goes through the breaker so a storage outage fails fast
// instead of tying up request goroutines for the full timeout.
type SupabaseStore struct {
	http    *resty.Client
	baseURL string
	bucket  string
	breaker *Breaker
}

func NewSupabaseStore(baseURL, serviceKey, bucket string, breaker *Breaker) *SupabaseStore {
	base := strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey).
		SetTimeout(30 * time.Second)

	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{Name: "object-storage"})
	}
	return &SupabaseStore{http: client, baseURL: base, bucket: bucket, breaker: breaker}
}

type storageError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (s *SupabaseStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	objectPath := fmt.Sprintf("/storage/v1/object/%s/%s", s.bucket, url.PathEscape(key))

	err := s.breaker.Do(func() error {
		apiErr := new(storageError)
		resp, err := s.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", contentType).
			SetHeader("x-upsert", "false").
			SetBody(data).
			SetError(apiErr).
			Post(objectPath)
		if err != nil {
			return fmt.Errorf("storage: upload %s: %w", key, err)
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Error
			}
			return fmt.Errorf("storage: upload %s: status %d: %s", key, resp.StatusCode(), msg)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

// PublicURL is where a stored object can be fetched without credentials.
func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}
