package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GatewayErrorInvalidSignature    = "INVALID_SIGNATURE"
	GatewayErrorInvalidPayload      = "INVALID_PAYLOAD"
	GatewayErrorIntakeUnavailable   = "INTAKE_UNAVAILABLE"
	GatewayErrorTransientDependency = "TRANSIENT_DEPENDENCY_FAILURE"
	GatewayErrorPermanentFailure    = "PERMANENT_FAILURE"
	GatewayErrorUnknown             = "UNKNOWN_ERROR"
	GatewayErrorRetryLimitExceeded  = "RETRY_LIMIT_EXCEEDED"
	GatewayErrorInternal            = "GATEWAY_INTERNAL_ERROR"
)

func gatewayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGatewayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newGatewayError(err.Error(), goerrors.CategoryAuth, GatewayErrorInvalidSignature)
	case strings.Contains(msg, "enqueue"), strings.Contains(msg, "queue unavailable"):
		return newGatewayError(err.Error(), goerrors.CategoryOperation, GatewayErrorIntakeUnavailable)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newGatewayError(err.Error(), goerrors.CategoryBadInput, GatewayErrorInvalidPayload)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGatewayErrorEnvelope(mapped)
}

func newGatewayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGatewayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGatewayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = gatewayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGatewayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGatewayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GatewayErrorInvalidPayload
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return GatewayErrorInvalidSignature
	case goerrors.CategoryOperation, goerrors.CategoryRateLimit:
		return GatewayErrorIntakeUnavailable
	default:
		return GatewayErrorInternal
	}
}

func gatewayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
