package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrBadRequest        = errors.New("bad request")
	ErrInternalServer    = errors.New("internal server error")
	ErrNotAllowed        = errors.New("not allowed")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrMessageNotFound   = errors.New("message not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageDeleted    = errors.New("message is deleted")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrMissingURL        = errors.New("Missing URL")
	ErrInvalidURL        = errors.New("invalid url")
	ErrGifSearchDisabled = errors.New("gif search is not configured")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// HTTPStatusFromError учитывает обернутые ошибки (fmt.Errorf с %w).
func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound), errors.Is(err, ErrPeerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrMissingURL), errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrMessageDeleted):
		return http.StatusConflict
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrGifSearchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает текст, который можно отдать клиенту.
// Внутренние ошибки не раскрываются.
func PublicMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	for _, known := range []error{
		ErrNotFound, ErrUnauthorized, ErrForbidden, ErrBadRequest, ErrNotAllowed,
		ErrInvalidToken, ErrTokenExpired, ErrMessageNotFound, ErrUserNotFound, ErrPeerNotFound,
		ErrEmptyMessage, ErrMessageDeleted, ErrInvalidCursor, ErrRateLimited, ErrUnsupportedMedia,
		ErrPayloadTooLarge, ErrMissingURL, ErrInvalidURL, ErrGifSearchDisabled,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternalServer.Error()
}
