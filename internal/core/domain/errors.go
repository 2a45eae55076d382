package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("medicine not found")
	ErrUnknownMedicine   = errors.New("unknown medicine")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInternalStorage   = errors.New("storage operation failed")
)

// StockError carries enough context for callers to render a precise
// insufficient-stock message.
type StockError struct {
	MedicineID string
	Requested  int
	Available  int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s: requested %d, available %d",
		e.MedicineID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
