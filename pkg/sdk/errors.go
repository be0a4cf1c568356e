package sdk

import (
	"errors"
	"fmt"
)

// Sentinel errors matched via errors.Is against APIError codes.
var (
	ErrKeyNotFound   = errors.New("sdk: book key not found")
	ErrInvalidQuery  = errors.New("sdk: invalid query")
	ErrUnauthorized  = errors.New("sdk: unauthorized")
	ErrProviderError = errors.New("sdk: embedding provider error")
)

// APIError is a structured error returned by the bookdex API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bookdex api: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

// Is maps well-known API codes onto package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrKeyNotFound:
		return e.Code == "key_not_found"
	case ErrInvalidQuery:
		return e.Code == "validation_failed"
	case ErrUnauthorized:
		return e.StatusCode == 401
	case ErrProviderError:
		return e.Code == "embedding_provider_error"
	}
	return false
}
