package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSigningInputInvalid       = "TIKTOKSHOP_SIGNING_INPUT_INVALID"
	ErrorCredentialNotFound        = "TIKTOKSHOP_CREDENTIAL_NOT_FOUND"
	ErrorAuthExchangeFailed        = "TIKTOKSHOP_AUTH_EXCHANGE_FAILED"
	ErrorRefreshFailed             = "TIKTOKSHOP_REFRESH_FAILED"
	ErrorUpstreamUnauthorized      = "TIKTOKSHOP_UPSTREAM_UNAUTHORIZED"
	ErrorTransport                 = "TIKTOKSHOP_TRANSPORT_ERROR"
	ErrorWebhookSignatureInvalid   = "TIKTOKSHOP_WEBHOOK_SIGNATURE_INVALID"
	ErrorUpstream                  = "TIKTOKSHOP_UPSTREAM_ERROR"
	ErrorAuthorizationStateInvalid = "TIKTOKSHOP_AUTHORIZATION_STATE_INVALID"
	ErrorConfigInvalid             = "TIKTOKSHOP_CONFIG_INVALID"
	ErrorBadInput                  = "TIKTOKSHOP_BAD_INPUT"
	ErrorInternal                  = "TIKTOKSHOP_INTERNAL_ERROR"
)

var kindCategories = map[string]goerrors.Category{
	ErrorSigningInputInvalid:       goerrors.CategoryBadInput,
	ErrorCredentialNotFound:        goerrors.CategoryNotFound,
	ErrorAuthExchangeFailed:        goerrors.CategoryExternal,
	ErrorRefreshFailed:             goerrors.CategoryAuth,
	ErrorUpstreamUnauthorized:      goerrors.CategoryAuth,
	ErrorTransport:                 goerrors.CategoryExternal,
	ErrorWebhookSignatureInvalid:   goerrors.CategoryAuth,
	ErrorUpstream:                  goerrors.CategoryExternal,
	ErrorAuthorizationStateInvalid: goerrors.CategoryBadInput,
	ErrorConfigInvalid:             goerrors.CategoryValidation,
	ErrorBadInput:                  goerrors.CategoryBadInput,
	ErrorInternal:                  goerrors.CategoryInternal,
}

// NewError builds a go-errors envelope for one of the package error kinds.
func NewError(kind string, message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, categoryForKind(kind)).
		WithCode(kindHTTPStatus(kind)).
		WithTextCode(kind)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// WrapError is NewError with a cause attached.
func WrapError(source error, kind string, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(kind, message, metadata)
	}
	err := goerrors.Wrap(source, categoryForKind(kind), message).
		WithCode(kindHTTPStatus(kind)).
		WithTextCode(kind)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// ErrorKind returns the text code carried by err, or "" when err is not an
// envelope produced by this module.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	return strings.TrimSpace(richErr.TextCode)
}

func IsKind(err error, kind string) bool {
	return err != nil && ErrorKind(err) == kind
}

// IsRetryable reports whether err may be retried by the transport retry
// policy. Only transport failures qualify.
func IsRetryable(err error) bool {
	return IsKind(err, ErrorTransport)
}

// MapError normalizes arbitrary errors into a go-errors envelope suitable for
// structured responses.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func categoryForKind(kind string) goerrors.Category {
	if category, ok := kindCategories[kind]; ok {
		return category
	}
	return goerrors.CategoryInternal
}

func kindHTTPStatus(kind string) int {
	switch kind {
	case ErrorAuthExchangeFailed, ErrorUpstream:
		return http.StatusBadGateway
	case ErrorTransport:
		return http.StatusServiceUnavailable
	}
	return categoryHTTPStatus(categoryForKind(kind))
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorCredentialNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUpstreamUnauthorized
	case goerrors.CategoryExternal:
		return ErrorUpstream
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
