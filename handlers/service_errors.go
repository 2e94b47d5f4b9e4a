package handlers

import (
	"errors"
	"net/http"

	"github.com/voyagerhq/llm-gateway/services"
	"github.com/voyagerhq/llm-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. The status code
// reflects the error category; the body carries a stable error_code and a
// retryable flag so clients can react without parsing messages.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	retryable := services.Retryable(err)
	details := errorDetails(err)

	switch errType {
	case services.ErrorTypeValidation:
		writeMapped(w, http.StatusBadRequest, string(errType), err.Error(), retryable, details, logger)

	case services.ErrorTypeBudget:
		// Budget denials are 429: the window refills on rollover.
		writeMapped(w, http.StatusTooManyRequests, string(errType), err.Error(), retryable, details, logger)

	case services.ErrorTypeCircuitOpen:
		writeMapped(w, http.StatusServiceUnavailable, string(errType), err.Error(), retryable, details, logger)

	case services.ErrorTypeExhausted:
		writeMapped(w, http.StatusBadGateway, string(errType), err.Error(), retryable, details, logger)

	case services.ErrorTypeExternal:
		writeMapped(w, http.StatusBadGateway, string(errType), err.Error(), retryable, details, logger)

	case services.ErrorTypeInternal:
		// Log internal errors but return a generic message.
		logger.Error("internal server error", zap.Error(err))
		if werr := utils.WriteInternalServerError(w, "An internal error occurred"); werr != nil {
			logger.Error("failed to write internal error response", zap.Error(werr))
		}

	default:
		logger.Error("unhandled error type", zap.Error(err), zap.String("error_type", string(errType)))
		if werr := utils.WriteInternalServerError(w, "An unexpected error occurred"); werr != nil {
			logger.Error("failed to write internal error response", zap.Error(werr))
		}
	}
}

func writeMapped(w http.ResponseWriter, status int, code, message string, retryable bool, details map[string]interface{}, logger *zap.Logger) {
	if err := utils.WriteError(w, status, code, message, retryable, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// errorCodeOf returns the stable error code for an error, falling back to
// internal when the error carries no category.
func errorCodeOf(err error) string {
	if t := services.GetErrorType(err); t != "" {
		return string(t)
	}
	return "internal_error"
}

func errorDetails(err error) map[string]interface{} {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) && len(domainErr.Details) > 0 {
		return domainErr.Details
	}
	return nil
}
