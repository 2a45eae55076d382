package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medilink/pharmacy/internal/core/domain"
	"github.com/medilink/pharmacy/internal/port"
)

const defaultUnit = "unit"

type PharmacyService struct {
	inventory     port.InventoryRepository
	prescriptions port.PrescriptionRepository
	sequences     port.SequenceRepository
	cache         port.CacheRepository // optional, nil disables caching and idempotency
	logger        zerolog.Logger
	now           func() time.Time
}

func NewPharmacyService(
	inventory port.InventoryRepository,
	prescriptions port.PrescriptionRepository,
	sequences port.SequenceRepository,
	cache port.CacheRepository,
	logger zerolog.Logger,
) *PharmacyService {
	return &PharmacyService{
		inventory:     inventory,
		prescriptions: prescriptions,
		sequences:     sequences,
		cache:         cache,
		logger:        logger,
		now:           time.Now,
	}
}

type RegisterMedicineRequest struct {
	Name      string
	SKU       string
	UnitPrice float64
	Unit      string
	Stock     int
}

func (s *PharmacyService) RegisterMedicine(ctx context.Context, req RegisterMedicineRequest) (*domain.Medicine, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if req.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price must not be negative", domain.ErrValidation)
	}
	if req.Stock < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative", domain.ErrValidation)
	}

	unit := req.Unit
	if unit == "" {
		unit = defaultUnit
	}

	seq, err := s.sequences.NextSequence(ctx, domain.KindMedicine)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate medicine sequence: %v", domain.ErrInternalStorage, err)
	}

	now := s.now().UTC()
	med := domain.Medicine{
		ID:        uuid.NewString(),
		Seq:       seq,
		Name:      req.Name,
		SKU:       req.SKU,
		UnitPrice: req.UnitPrice,
		Unit:      unit,
		Stock:     req.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.inventory.CreateMedicine(ctx, med); err != nil {
		return nil, fmt.Errorf("%w: insert medicine: %v", domain.ErrInternalStorage, err)
	}

	return &med, nil
}

func (s *PharmacyService) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: medicine ref is required", domain.ErrValidation)
	}

	if s.cache != nil {
		if med, err := s.cache.GetMedicine(ctx, id); err == nil && med != nil {
			return med, nil
		}
	}

	med, err := s.inventory.GetMedicine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: query medicine: %v", domain.ErrInternalStorage, err)
	}
	if med == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	if s.cache != nil {
		if err := s.cache.PutMedicine(ctx, *med); err != nil {
			s.logger.Warn().Err(err).Str("medicine_id", id).Msg("cache put failed")
		} else if latest, err := s.inventory.GetMedicine(ctx, id); err != nil || latest == nil ||
			latest.Stock != med.Stock || !latest.UpdatedAt.Equal(med.UpdatedAt) {
			// An adjustment can land between the durable read and the put,
			// pinning a stale record for the full TTL. A mutation committed
			// before this re-read shows up in the comparison; one committed
			// after it runs its own invalidation behind our put.
			s.invalidate(ctx, id)
		}
	}

	return med, nil
}

func (s *PharmacyService) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	medicines, err := s.inventory.ListMedicines(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list medicines: %v", domain.ErrInternalStorage, err)
	}

	return medicines, nil
}

// StockAdjustment is either a relative delta or an absolute quantity, never both.
type StockAdjustment struct {
	Delta    *int
	Absolute *int
}

func (s *PharmacyService) AdjustStock(ctx context.Context, id string, adj StockAdjustment) (*domain.Medicine, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: medicine ref is required", domain.ErrValidation)
	}
	if (adj.Delta == nil) == (adj.Absolute == nil) {
		return nil, fmt.Errorf("%w: exactly one of delta or absolute is required", domain.ErrValidation)
	}
	if adj.Absolute != nil && *adj.Absolute < 0 {
		return nil, fmt.Errorf("%w: absolute stock must not be negative", domain.ErrValidation)
	}
	if adj.Delta != nil && *adj.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", domain.ErrValidation)
	}

	// A failed conditional decrement cannot tell "missing record" from
	// "insufficient stock" on its own, so check existence up front.
	current, err := s.inventory.GetMedicine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: query medicine: %v", domain.ErrInternalStorage, err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	if adj.Absolute != nil {
		ok, err := s.inventory.SetStock(ctx, id, *adj.Absolute)
		if err != nil {
			return nil, fmt.Errorf("%w: set stock: %v", domain.ErrInternalStorage, err)
		}
		// MySQL reports zero affected rows when the value is unchanged, so a
		// false here with a matching current quantity is still a success.
		if !ok && current.Stock != *adj.Absolute {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
	} else {
		delta := *adj.Delta
		ok, err := s.inventory.AdjustStock(ctx, id, delta)
		if err != nil {
			return nil, fmt.Errorf("%w: adjust stock: %v", domain.ErrInternalStorage, err)
		}
		if !ok {
			if delta > 0 {
				return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
			}
			return nil, &domain.StockError{MedicineID: id, Requested: -delta, Available: current.Stock}
		}
	}

	s.invalidate(ctx, id)

	updated, err := s.inventory.GetMedicine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reload medicine: %v", domain.ErrInternalStorage, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return updated, nil
}

type PrescriptionItemRequest struct {
	MedicineID string
	Quantity   int
}

type CreatePrescriptionRequest struct {
	RequestID string // optional; enables duplicate-submission suppression
	PatientID string
	DoctorID  string
	Items     []PrescriptionItemRequest
	Notes     string
}

// CreatePrescription runs the fulfillment protocol: validate, resolve every
// referenced medicine, pre-check availability, decrement line items one by one
// through conditional updates, then persist the record. There is no
// cross-record transaction, so any failure after the first decrement triggers
// compensation: every already-decremented item is re-incremented before the
// error is surfaced. Either every line item is fulfilled and exactly one
// record is created, or stock is left untouched and no record exists.
func (s *PharmacyService) CreatePrescription(ctx context.Context, req CreatePrescriptionRequest) (*domain.Prescription, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("%w: patient ref is required", domain.ErrValidation)
	}
	if req.DoctorID == "" {
		return nil, fmt.Errorf("%w: doctor ref is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", domain.ErrValidation)
	}
	for i, item := range req.Items {
		if item.MedicineID == "" {
			return nil, fmt.Errorf("%w: line item %d: medicine ref is required", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line item %d: quantity must be positive", domain.ErrValidation, i)
		}
	}

	idempotencyKey := ""
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = "prescription:" + req.RequestID
		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("%w: idempotency check: %v", domain.ErrInternalStorage, err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	p, err := s.fulfill(ctx, req)
	if err != nil && idempotencyKey != "" {
		// A rejected request must stay retryable; only a fulfilled one keeps
		// its key claimed.
		rctx := context.WithoutCancel(ctx)
		if rerr := s.cache.ReleaseIdempotency(rctx, idempotencyKey); rerr != nil {
			s.logger.Warn().Err(rerr).Str("request_id", req.RequestID).Msg("idempotency release failed")
		}
	}

	return p, err
}

func (s *PharmacyService) fulfill(ctx context.Context, req CreatePrescriptionRequest) (*domain.Prescription, error) {
	// Resolve each distinct ref once; abort before any mutation on an unknown one.
	resolved := make(map[string]*domain.Medicine, len(req.Items))
	needed := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		needed[item.MedicineID] += item.Quantity
		if _, seen := resolved[item.MedicineID]; seen {
			continue
		}
		med, err := s.inventory.GetMedicine(ctx, item.MedicineID)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve medicine %s: %v", domain.ErrInternalStorage, item.MedicineID, err)
		}
		if med == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMedicine, item.MedicineID)
		}
		resolved[item.MedicineID] = med
	}

	// Advisory pre-check on the snapshot. The decrement phase re-enforces the
	// guard per record, this only rejects requests that cannot possibly succeed.
	checked := make(map[string]bool, len(resolved))
	for _, item := range req.Items {
		if checked[item.MedicineID] {
			continue
		}
		checked[item.MedicineID] = true
		if med := resolved[item.MedicineID]; med.Stock < needed[item.MedicineID] {
			return nil, &domain.StockError{
				MedicineID: item.MedicineID,
				Requested:  needed[item.MedicineID],
				Available:  med.Stock,
			}
		}
	}

	// Decrement phase, sequential so compensation knows exactly what succeeded.
	applied := make([]domain.PrescriptionItem, 0, len(req.Items))
	for _, item := range req.Items {
		ok, err := s.inventory.AdjustStock(ctx, item.MedicineID, -item.Quantity)
		if err != nil {
			return nil, s.abortFulfillment(ctx, applied,
				fmt.Errorf("%w: decrement medicine %s: %v", domain.ErrInternalStorage, item.MedicineID, err))
		}
		if !ok {
			// Lost the race between pre-check and decrement.
			return nil, s.abortFulfillment(ctx, applied, &domain.StockError{
				MedicineID: item.MedicineID,
				Requested:  item.Quantity,
				Available:  resolved[item.MedicineID].Stock,
			})
		}
		applied = append(applied, domain.PrescriptionItem{MedicineID: item.MedicineID, Quantity: item.Quantity})
	}

	seq, err := s.sequences.NextSequence(ctx, domain.KindPrescription)
	if err != nil {
		return nil, s.abortFulfillment(ctx, applied,
			fmt.Errorf("%w: allocate prescription sequence: %v", domain.ErrInternalStorage, err))
	}

	p := domain.Prescription{
		ID:        uuid.NewString(),
		Seq:       seq,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Items:     applied,
		Notes:     req.Notes,
		CreatedAt: s.now().UTC(),
	}

	if err := s.prescriptions.CreatePrescription(ctx, p); err != nil {
		return nil, s.abortFulfillment(ctx, applied,
			fmt.Errorf("%w: insert prescription: %v", domain.ErrInternalStorage, err))
	}

	for id := range resolved {
		s.invalidate(ctx, id)
	}

	return &p, nil
}

func (s *PharmacyService) ListPrescriptions(ctx context.Context, filter port.PrescriptionFilter) ([]domain.Prescription, error) {
	prescriptions, err := s.prescriptions.ListPrescriptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list prescriptions: %v", domain.ErrInternalStorage, err)
	}

	return prescriptions, nil
}

// abortFulfillment compensates the applied decrements and keeps the
// triggering cause visible even when compensation itself fails.
func (s *PharmacyService) abortFulfillment(ctx context.Context, applied []domain.PrescriptionItem, cause error) error {
	if cerr := s.compensate(ctx, applied); cerr != nil {
		return errors.Join(cause, cerr)
	}
	return cause
}

// compensate restores stock for every line item already decremented, in
// reverse order. It runs on a detached context: a caller timeout must not be
// able to strand decremented stock. A compensation failure leaves inventory
// short and is surfaced as a storage error, never swallowed.
func (s *PharmacyService) compensate(ctx context.Context, applied []domain.PrescriptionItem) error {
	if len(applied) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	var stranded []string
	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		ok, err := s.inventory.AdjustStock(ctx, item.MedicineID, item.Quantity)
		if err != nil || !ok {
			s.logger.Error().
				Err(err).
				Str("medicine_id", item.MedicineID).
				Int("quantity", item.Quantity).
				Msg("compensation failed, stock stranded")
			stranded = append(stranded, item.MedicineID)
			continue
		}
		s.invalidate(ctx, item.MedicineID)
	}

	if len(stranded) > 0 {
		return fmt.Errorf("%w: compensation failed for medicines %v", domain.ErrInternalStorage, stranded)
	}

	return nil
}

func (s *PharmacyService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateMedicine(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("medicine_id", id).Msg("cache invalidation failed")
	}
}
