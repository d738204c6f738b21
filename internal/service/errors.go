package service

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("order belongs to another user")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrSubmitInProgress  = errors.New("payment submission already in progress")
	ErrProcessorRejected = errors.New("payment processor rejected the request")
	ErrProcessorTimeout  = errors.New("payment processor timed out")

	ErrMalformedNotification = errors.New("malformed payment notification")
	ErrNotificationPersist   = errors.New("failed to persist payment notification")
)

// ValidationError names the offending field; it matches ErrValidation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
