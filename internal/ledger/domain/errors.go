package domain

import "errors"

var (
	ErrOwnerNotFound    = errors.New("owner not found")
	ErrEmptyDescription = errors.New("audit description is required")
)
