package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrVerificationFailed = errors.New("verification failed")
	ErrUnavailable        = errors.New("service unavailable")
)

const (
	RateLimitedMessage = "Too many requests. Please try again later."
	InvalidJSONMessage = "Invalid JSON payload."
	honeypotMessage    = "Invalid submission."
	invalidEmailMsg    = "Please provide a valid email address."
	termsRequiredMsg   = "You must agree to the Terms of Service and Privacy Policy."
)

// FormError carries the user-facing message for a terminal outcome. It
// unwraps to one of the sentinel kinds above.
type FormError struct {
	Kind    error
	Message string
}

func (e *FormError) Error() string {
	return e.Message
}

func (e *FormError) Unwrap() error {
	return e.Kind
}

func invalidInput(msg string) error {
	return &FormError{Kind: ErrInvalidInput, Message: msg}
}

func rateLimited() error {
	return &FormError{Kind: ErrRateLimited, Message: RateLimitedMessage}
}

func verificationFailed(msg string) error {
	return &FormError{Kind: ErrVerificationFailed, Message: msg}
}

func unavailable(msg string) error {
	return &FormError{Kind: ErrUnavailable, Message: msg}
}

// UserMessage returns the text safe to show for err, or fallback when err
// carries none.
func UserMessage(err error, fallback string) string {
	var fe *FormError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return fallback
}
