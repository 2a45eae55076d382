package port

import (
	"context"

	"github.com/medilink/pharmacy/internal/core/domain"
)

type InventoryRepository interface {
	// CreateMedicine persists a new medicine record
	CreateMedicine(ctx context.Context, m domain.Medicine) error

	// GetMedicine retrieves a medicine by storage id, nil when absent
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)

	// ListMedicines returns all medicines ordered by sequence id ascending
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)

	// AdjustStock applies a relative stock change as a single conditional
	// update; returns false when the guard fails (insufficient stock, or no
	// such record)
	AdjustStock(ctx context.Context, id string, delta int) (bool, error)

	// SetStock unconditionally sets the stock quantity, false when no such record
	SetStock(ctx context.Context, id string, quantity int) (bool, error)
}

type PrescriptionRepository interface {
	// CreatePrescription persists the record and its line items atomically
	CreatePrescription(ctx context.Context, p domain.Prescription) error

	// ListPrescriptions returns records matching the filter, ordered by sequence id
	ListPrescriptions(ctx context.Context, filter PrescriptionFilter) ([]domain.Prescription, error)
}

// PrescriptionFilter narrows listing by external refs; empty fields match all.
type PrescriptionFilter struct {
	PatientID string
	DoctorID  string
}

type SequenceRepository interface {
	// NextSequence atomically increments and returns the counter for kind,
	// creating it on first allocation
	NextSequence(ctx context.Context, kind domain.Kind) (int64, error)
}
