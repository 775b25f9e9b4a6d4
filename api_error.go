package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// StackLocalsKey is where the recover middleware leaves the panic stack
const StackLocalsKey = "error_stack"

var defaultMessages = map[int]string{
	http.StatusBadRequest:          "A bad request, you have made",
	http.StatusUnauthorized:        "Authorized, you are not",
	http.StatusNotFound:            "Resource was not found",
	http.StatusInternalServerError: "Errors are the path to the dark side. Errors lead to anger",
}

// DefaultMessage returns the canned text for status, empty when there
// is none.
func DefaultMessage(status int) string {
	return defaultMessages[status]
}

// ApiError is the body of every failed response
type ApiError struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
	Details    string   `json:"details,omitempty"`
}

// NewApiError builds an error for status, falling back to the canned
// message when none is given.
func NewApiError(status int, message ...string) ApiError {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}
	if msg == "" {
		msg = DefaultMessage(status)
	}
	return ApiError{StatusCode: status, Message: msg}
}

// NewValidationApiError is a 400 carrying one message per failed field
func NewValidationApiError(messages []string) ApiError {
	e := NewApiError(http.StatusBadRequest)
	e.Errors = append([]string(nil), messages...)
	return e
}

func (e ApiError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// ErrorTranslator is the last resort boundary turning any error into
// an ApiError.
type ErrorTranslator struct {
	Development bool
	Logger      Logger
}

func NewErrorTranslator(development bool, logger Logger) *ErrorTranslator {
	return &ErrorTranslator{
		Development: development,
		Logger:      normalizeLogger(logger),
	}
}

// Translate maps err onto the response shape
func (t *ErrorTranslator) Translate(err error) ApiError {
	if err == nil {
		return NewApiError(http.StatusInternalServerError)
	}

	var apiErr ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var apiErrPtr *ApiError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr
	}

	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationApiError(verrs.Messages())
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return t.fromStatus(fiberErr.Code, fiberErr.Message)
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		switch richErr.Category {
		case errors.CategoryAuth:
			return NewApiError(http.StatusUnauthorized)
		case errors.CategoryAuthz:
			return NewApiError(http.StatusForbidden, richErr.Message)
		case errors.CategoryValidation, errors.CategoryBadInput:
			if fields, ok := errors.GetValidationErrors(err); ok {
				messages := make([]string, 0, len(fields))
				for _, fe := range fields {
					messages = append(messages, fe.Error())
				}
				return NewValidationApiError(messages)
			}
			return NewValidationApiError([]string{richErr.Message})
		case errors.CategoryNotFound:
			return NewApiError(http.StatusNotFound)
		case errors.CategoryConflict:
			return NewApiError(http.StatusConflict, richErr.Message)
		case errors.CategoryRateLimit:
			return NewApiError(http.StatusTooManyRequests, richErr.Message)
		}
	}

	return t.internal(err)
}

// Handler is a fiber.ErrorHandler
func (t *ErrorTranslator) Handler(c *fiber.Ctx, err error) error {
	apiErr := t.Translate(err)

	if t.Development && apiErr.StatusCode >= http.StatusInternalServerError {
		if stack, ok := c.Locals(StackLocalsKey).(string); ok && stack != "" {
			apiErr.Details = stack
		}
	}

	return c.Status(apiErr.StatusCode).JSON(apiErr)
}

func (t *ErrorTranslator) fromStatus(status int, message string) ApiError {
	// fiber fills in the bare status text when no message was given
	if message == utils.StatusMessage(status) {
		message = ""
	}
	if status >= http.StatusInternalServerError && message != "" {
		return t.internal(fiber.NewError(status, message))
	}
	return NewApiError(status, message)
}

// internal keeps the error text in every environment, stack and
// metadata only reach the response in development.
func (t *ErrorTranslator) internal(err error) ApiError {
	status := http.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code > status {
		status = fiberErr.Code
	}

	message := err.Error()
	var richErr *errors.Error
	hasRich := errors.As(err, &richErr)
	if hasRich && richErr.Message != "" {
		message = richErr.Message
	}
	if fiberErr != nil && fiberErr.Message != "" {
		message = fiberErr.Message
	}

	apiErr := NewApiError(status, message)
	logger := normalizeLogger(t.Logger)

	if !t.Development {
		logger.Error("unhandled error", "error", err)
		return apiErr
	}

	var details []string
	if hasRich && len(richErr.Metadata) > 0 {
		details = append(details, print.MaybePrettyJSON(richErr.Metadata))
	}
	if hasRich && len(richErr.StackTrace) > 0 {
		details = append(details, richErr.StackTrace.String())
	}
	apiErr.Details = strings.Join(details, "\n\n")

	logger.Error("unhandled error", "error", err, "details", apiErr.Details)

	return apiErr
}
