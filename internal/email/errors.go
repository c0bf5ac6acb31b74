package email

// ============================================================================
// EMAIL ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.

const (
	codeInternal = "internal"
	codeInvalid  = "invalid"
)

// EmailError represents an email-specific error with a code and message.
type EmailError struct {
	Code    string
	Message string
}

func (e *EmailError) Error() string {
	return e.Message
}

// ErrorCode returns the error code.
func (e *EmailError) ErrorCode() string {
	return e.Code
}

func newEmailError(code, message string) *EmailError {
	return &EmailError{Code: code, Message: message}
}

var (
	// ErrNoRecipient is returned when an order has no contact email.
	ErrNoRecipient = newEmailError(codeInvalid, "Order has no contact email")

	// ErrTemplate is returned when an email template cannot be rendered.
	ErrTemplate = newEmailError(codeInternal, "Email template could not be rendered")
)
