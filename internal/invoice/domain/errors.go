package domain

import "errors"

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrEmptySelection    = errors.New("no charge items selected")
	ErrSequenceConflict  = errors.New("invoice sequence conflict persisted after retries")
	ErrNothingToGenerate = errors.New("no invoices could be generated from the selection")
)
