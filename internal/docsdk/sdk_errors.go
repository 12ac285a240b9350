package docsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")

	// ErrVersionMismatch means the document moved since the version the caller
	// asserted. The write was not applied.
	ErrVersionMismatch = errors.New("sdk: version mismatch")
	// ErrDocumentNotFound means the remote id does not exist.
	ErrDocumentNotFound = errors.New("sdk: document not found")
	ErrAccessDenied     = errors.New("sdk: access denied")
)

const (
	CodeInvalidRequest  = "E_INVALID_REQUEST"
	CodeRateLimited     = "E_RATE_LIMITED"
	CodeInternalError   = "E_INTERNAL_ERROR"
	CodeAccessDenied    = "E_ACCESS_DENIED"
	CodeVersionConflict = "E_VERSION_CONFLICT"
	CodeNotFound        = "E_DOCUMENT_NOT_FOUND"
)

// APIError is the error body returned by the document service.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrVersionMismatch:
		return e.Code == CodeVersionConflict || e.Status == http.StatusConflict
	case ErrDocumentNotFound:
		return e.Code == CodeNotFound || e.Status == http.StatusNotFound
	case ErrAccessDenied:
		return e.Code == CodeAccessDenied || e.Status == http.StatusForbidden
	}
	return false
}

// Retryable reports whether repeating the same request could succeed.
func (e *APIError) Retryable() bool {
	return e.Code == CodeRateLimited || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsRetryable reports whether err is a transport failure or a retryable API error.
// Version mismatches, missing documents and permission errors never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if !resp.IsErrorState() {
		return nil
	}

	apiErr, ok := resp.ErrorResult().(*APIError)
	if !ok || apiErr == nil || apiErr.Code == "" {
		apiErr = &APIError{Code: codeForStatus(resp.StatusCode), Message: resp.Status}
	}
	apiErr.Status = resp.StatusCode
	return fmt.Errorf("%s %w", operation, apiErr)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusConflict:
		return CodeVersionConflict
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return CodeAccessDenied
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadRequest:
		return CodeInvalidRequest
	}
	return CodeInternalError
}
