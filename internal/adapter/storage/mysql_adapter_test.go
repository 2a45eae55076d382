package storage

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/medilink/pharmacy/internal/core/domain"
	"github.com/medilink/pharmacy/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/pharmacy?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func insertTestMedicine(t *testing.T, adapter *MySQLAdapter, name string, stock int) domain.Medicine {
	t.Helper()
	ctx := context.Background()

	seq, err := adapter.NextSequence(ctx, domain.KindMedicine)
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	med := domain.Medicine{
		ID:        uuid.NewString(),
		Seq:       seq,
		Name:      name,
		Unit:      "unit",
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := adapter.CreateMedicine(ctx, med); err != nil {
		t.Fatalf("CreateMedicine failed: %v", err)
	}

	return med
}

func TestNextSequence_Monotonic(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	first, err := adapter.NextSequence(ctx, domain.KindMedicine)
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}

	second, err := adapter.NextSequence(ctx, domain.KindMedicine)
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}

	if second != first+1 {
		t.Errorf("expected %d, got %d", first+1, second)
	}
}

func TestNextSequence_ConcurrentAllocationsDistinct(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	const allocations = 20
	results := make(chan int64, allocations)
	var wg sync.WaitGroup
	for i := 0; i < allocations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := adapter.NextSequence(ctx, domain.KindPrescription)
			if err != nil {
				t.Errorf("NextSequence failed: %v", err)
				results <- -1
				return
			}
			results <- seq
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for seq := range results {
		if seq == -1 {
			continue
		}
		if seen[seq] {
			t.Errorf("duplicate sequence value %d", seq)
		}
		seen[seq] = true
	}
}

func TestAdjustStock_ConditionalDecrement(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	med := insertTestMedicine(t, adapter, "adjust-test", 10)
	defer db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, med.ID)

	ok, err := adapter.AdjustStock(ctx, med.ID, -4)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if !ok {
		t.Fatal("expected decrement to succeed")
	}

	got, err := adapter.GetMedicine(ctx, med.ID)
	if err != nil {
		t.Fatalf("GetMedicine failed: %v", err)
	}
	if got.Stock != 6 {
		t.Errorf("expected stock 6, got %d", got.Stock)
	}

	// A decrement past zero must lose the guard and leave stock untouched.
	ok, err = adapter.AdjustStock(ctx, med.ID, -7)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if ok {
		t.Error("expected guard failure")
	}

	got, _ = adapter.GetMedicine(ctx, med.ID)
	if got.Stock != 6 {
		t.Errorf("expected stock 6 after failed decrement, got %d", got.Stock)
	}
}

func TestAdjustStock_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)

	ok, err := adapter.AdjustStock(context.Background(), "nonexistent-id", -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false for nonexistent medicine")
	}
}

func TestAdjustStock_ConcurrentDecrements(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	med := insertTestMedicine(t, adapter, "race-test", 5)
	defer db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, med.ID)

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.AdjustStock(ctx, med.ID, -3)
			if err != nil {
				t.Errorf("AdjustStock failed: %v", err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 successful decrement, got %d", successes)
	}

	got, _ := adapter.GetMedicine(ctx, med.ID)
	if got.Stock != 2 {
		t.Errorf("expected stock 2, got %d", got.Stock)
	}
}

func TestSetStock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	med := insertTestMedicine(t, adapter, "set-test", 7)
	defer db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, med.ID)

	ok, err := adapter.SetStock(ctx, med.ID, 100)
	if err != nil {
		t.Fatalf("SetStock failed: %v", err)
	}
	if !ok {
		t.Fatal("expected set to succeed")
	}

	got, _ := adapter.GetMedicine(ctx, med.ID)
	if got.Stock != 100 {
		t.Errorf("expected stock 100, got %d", got.Stock)
	}
}

func TestGetMedicine_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)

	med, err := adapter.GetMedicine(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if med != nil {
		t.Error("expected nil for nonexistent medicine")
	}
}

func TestCreatePrescription_AndList(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	med := insertTestMedicine(t, adapter, "rx-test", 10)

	seq, err := adapter.NextSequence(ctx, domain.KindPrescription)
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}

	patientID := "test-patient-" + uuid.NewString()
	p := domain.Prescription{
		ID:        uuid.NewString(),
		Seq:       seq,
		PatientID: patientID,
		DoctorID:  "test-doctor",
		Items: []domain.PrescriptionItem{
			{MedicineID: med.ID, Quantity: 2},
			{MedicineID: med.ID, Quantity: 1},
		},
		Notes:     "test notes",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := adapter.CreatePrescription(ctx, p); err != nil {
		t.Fatalf("CreatePrescription failed: %v", err)
	}
	defer func() {
		db.ExecContext(ctx, `DELETE FROM prescription_items WHERE prescription_id = ?`, p.ID)
		db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ?`, p.ID)
		db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, med.ID)
	}()

	listed, err := adapter.ListPrescriptions(ctx, port.PrescriptionFilter{PatientID: patientID})
	if err != nil {
		t.Fatalf("ListPrescriptions failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 prescription, got %d", len(listed))
	}
	if len(listed[0].Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(listed[0].Items))
	}
	if listed[0].Items[0].Quantity != 2 || listed[0].Items[1].Quantity != 1 {
		t.Errorf("line items out of order: %+v", listed[0].Items)
	}

	none, err := adapter.ListPrescriptions(ctx, port.PrescriptionFilter{
		PatientID: patientID,
		DoctorID:  "other-doctor",
	})
	if err != nil {
		t.Fatalf("ListPrescriptions failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no match for other doctor, got %d", len(none))
	}
}
