package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/storage"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/service/auth"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/phrazzld/tryon-api/internal/worker"
)

const (
	genericErrorMessage    = "An unexpected error occurred"
	validationErrorMessage = "Validation error"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidAdminKey),
		errors.Is(err, worker.ErrInvalidSignature):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrDeviceInactive):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, pairing.ErrTokenNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Pairing refusals
	case errors.Is(err, pairing.ErrPairingConflict):
		return http.StatusConflict
	case errors.Is(err, pairing.ErrPairingExpired):
		return http.StatusGone

	// Upload limits
	case errors.Is(err, storage.ErrPhotoTooLarge):
		return http.StatusRequestEntityTooLarge

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, storage.ErrInvalidPhoto),
		errors.Is(err, worker.ErrMalformedWebhook),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	// Render worker could not take the job
	case errors.Is(err, service.ErrSubmissionUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Session expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authentication required"
	case errors.Is(err, auth.ErrInvalidAdminKey):
		return "Invalid admin key"
	case errors.Is(err, worker.ErrInvalidSignature):
		return "Invalid signature"

	case errors.Is(err, service.ErrForbidden):
		return "Resource belongs to another device"
	case errors.Is(err, service.ErrDeviceInactive):
		return "Device is inactive"

	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrDeviceNotFound):
		return "Device not found"
	case errors.Is(err, pairing.ErrTokenNotFound):
		return "Pairing token not found"
	case errors.Is(err, pairing.ErrPairingConflict):
		return "Pairing token already used"
	case errors.Is(err, pairing.ErrPairingExpired):
		return "Pairing token expired"

	case errors.Is(err, storage.ErrPhotoTooLarge):
		return "Photo is too large"
	case errors.Is(err, storage.ErrInvalidPhoto):
		return "Photo could not be read as an image"
	case errors.Is(err, worker.ErrMalformedWebhook):
		return "Malformed webhook payload"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.As(err, &validationErr):
		return fmt.Sprintf("Invalid %s", validationErr.Field)
	case errors.Is(err, domain.ErrValidation):
		return domainValidationMessage(err)

	case errors.Is(err, service.ErrSubmissionUnavailable):
		return "Render service is temporarily unavailable, please retry"

	default:
		return genericErrorMessage
	}
}

// domainValidationMessage extracts the fixed rule text that domain
// validation errors carry after the sentinel's message.
func domainValidationMessage(err error) string {
	prefix := domain.ErrValidation.Error() + ": "
	msg := err.Error()
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		if rule := msg[i+len(prefix):]; rule != "" {
			return strings.ToUpper(rule[:1]) + rule[1:]
		}
	}
	return validationErrorMessage
}

// SanitizeValidationError turns a request validation or decoding failure
// into a user-friendly message without echoing input.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	if errors.Is(err, shared.ErrEmptyBody) {
		return "Request body is required"
	}
	return validationErrorMessage
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "url", "http_url":
		return "invalid URL"
	case "uuid":
		return "invalid identifier"
	case "dive":
		return "invalid entry"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err and logs
// the redacted detail.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, opts ...shared.ResponseOption) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err, opts...)
}

// handleValidationError responds 400 for a request that failed to decode or
// validate.
func handleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
}
