package domain

import "errors"

var (
	ErrChargeNotFound = errors.New("charge item not found")
	ErrChargeNotOpen  = errors.New("charge item is not open")
	ErrEmptyBatch     = errors.New("no charge items provided")
	ErrInvalidCharge  = errors.New("invalid charge item")
	ErrHorseNotFound  = errors.New("horse not found")
)
