package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	checkoutdomain "github.com/shafran/commerce/internal/checkout/domain"
	orderdomain "github.com/shafran/commerce/internal/order/domain"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware turns errors attached to the gin context into
// the JSON error envelope. Callback routes write their own provider
// envelopes and never reach this path.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrUnauthorizedCallback):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, paymentdomain.ErrNotOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, catalogdomain.ErrInvalidQuantity),
		errors.Is(err, cartdomain.ErrInvalidIdentity),
		errors.Is(err, cartdomain.ErrInvalidQuantity),
		errors.Is(err, orderdomain.ErrInvalidAddress),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, checkoutdomain.ErrUserRequired):
		return true
	default:
		return false
	}
}

// Conflicts are requests that were well formed but collide with the
// current state of stock, the cart, or a payment lifecycle.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, catalogdomain.ErrInsufficientStock),
		errors.Is(err, catalogdomain.ErrProductInactive),
		errors.Is(err, catalogdomain.ErrVariantInactive),
		errors.Is(err, catalogdomain.ErrDuplicateSKU),
		errors.Is(err, cartdomain.ErrEmptyCart),
		errors.Is(err, orderdomain.ErrCancelNotAllowed),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrOrderHasTransaction),
		errors.Is(err, paymentdomain.ErrRefundNotAllowed),
		errors.Is(err, paymentdomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, catalogdomain.ErrInsufficientStock):
		return "insufficient stock"
	case errors.Is(err, cartdomain.ErrEmptyCart):
		return "cart is empty"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound),
		errors.Is(err, catalogdomain.ErrVariantNotFound),
		errors.Is(err, cartdomain.ErrCartNotFound),
		errors.Is(err, cartdomain.ErrItemNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrTransactionNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets handler errors for the request logger so
// expected rejections do not page as server faults.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "error", payload.Type
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "security", payload.Type
	default:
		return "client", payload.Type
	}
}
