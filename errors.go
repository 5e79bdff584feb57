package starbazaar

import "fmt"

// APIError represents a marketplace backend error
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeNotFound          = "not_found"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeInvalidSignature  = "invalid_signature"
	ErrCodeListingClosed     = "listing_closed"
	ErrCodeOfferClosed       = "offer_closed"
	ErrCodeInvoiceExpired    = "invoice_expired"
	ErrCodePaymentRejected   = "payment_rejected"
	ErrCodeDuplicateRequest  = "duplicate_request"
	ErrCodeRateLimited       = "rate_limited"
)

// NewAPIError creates a new API error
func NewAPIError(code, message string, details map[string]interface{}) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
