// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package so internal details
// (stack traces, SQL errors) never leak.
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Fields: fields}
}

// StockError tells the client how much green stock was left when a roast
// could not be started.
type StockError struct {
	Detail    string `json:"detail"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func NewStock(msg string, available, requested int) *StockError {
	return &StockError{Detail: msg, Available: available, Requested: requested}
}
