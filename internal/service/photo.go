package service

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"roastkit/internal/infra"
)

// Photo is an image received from a client, not yet stored.
type Photo struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Ext picks the file extension from the original name, falling back to the
// content type and finally to jpg.
func (p *Photo) Ext() string {
	if i := strings.LastIndex(p.Filename, "."); i >= 0 && i < len(p.Filename)-1 {
		return strings.ToLower(p.Filename[i+1:])
	}
	if exts, _ := mime.ExtensionsByType(p.ContentType); len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "jpg"
}

func batchPhotoKey(batchID fmt.Stringer, p *Photo, at time.Time) string {
	return fmt.Sprintf("%s-%d.%s", batchID, at.UnixMilli(), p.Ext())
}

func sackPhotoKey(varietyID fmt.Stringer, p *Photo, at time.Time) string {
	return fmt.Sprintf("sack-%s-%d.%s", varietyID, at.UnixMilli(), p.Ext())
}

// upload stores p under key and wraps every failure in ErrUploadFailed.
func upload(ctx context.Context, store infra.ObjectStore, key string, p *Photo) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%w: object storage is not configured", ErrUploadFailed)
	}
	url, err := store.Put(ctx, key, p.ContentType, p.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return url, nil
}
