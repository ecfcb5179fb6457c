package domain

import "errors"

var (
	ErrInvalidAmount     = errors.New("payment amount must be greater than zero")
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrInvalidPayload    = errors.New("webhook payload could not be parsed")
	ErrDuplicateEvent    = errors.New("gateway event already recorded")
	ErrEmptyMethod       = errors.New("payment method is required")
	ErrInvalidPaidOnDate = errors.New("payment date is required")
)
