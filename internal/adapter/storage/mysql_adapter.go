package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medilink/pharmacy/internal/core/domain"
	"github.com/medilink/pharmacy/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// NextSequence allocates the next counter value for kind in a single atomic
// statement. LAST_INSERT_ID(expr) makes the upserted value readable from the
// result without a second round trip, so concurrent callers never observe the
// same value.
func (m *MySQLAdapter) NextSequence(ctx context.Context, kind domain.Kind) (int64, error) {
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO counters (kind, value) VALUES (?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)`,
		string(kind),
	)
	if err != nil {
		return 0, fmt.Errorf("increment counter %q: %w", kind, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read counter %q: %w", kind, err)
	}

	return seq, nil
}

func (m *MySQLAdapter) CreateMedicine(ctx context.Context, med domain.Medicine) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO medicines (id, seq, name, sku, unit_price, unit, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		med.ID, med.Seq, med.Name, med.SKU, med.UnitPrice, med.Unit, med.Stock,
		med.CreatedAt, med.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}

	return nil
}

func (m *MySQLAdapter) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	var med domain.Medicine
	err := m.db.QueryRowContext(ctx, `
		SELECT id, seq, name, sku, unit_price, unit, stock, created_at, updated_at
		FROM medicines WHERE id = ?`, id,
	).Scan(&med.ID, &med.Seq, &med.Name, &med.SKU, &med.UnitPrice, &med.Unit,
		&med.Stock, &med.CreatedAt, &med.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query medicine: %w", err)
	}

	return &med, nil
}

func (m *MySQLAdapter) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, seq, name, sku, unit_price, unit, stock, created_at, updated_at
		FROM medicines ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	var medicines []domain.Medicine
	for rows.Next() {
		var med domain.Medicine
		if err := rows.Scan(&med.ID, &med.Seq, &med.Name, &med.SKU, &med.UnitPrice,
			&med.Unit, &med.Stock, &med.CreatedAt, &med.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		medicines = append(medicines, med)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medicines: %w", err)
	}

	return medicines, nil
}

// AdjustStock applies a relative change as one conditional update. For a
// negative delta the guard `stock >= ?` collapses read-check-write into a
// single statement, so two concurrent decrements can never both pass the
// check and push the quantity negative.
func (m *MySQLAdapter) AdjustStock(ctx context.Context, id string, delta int) (bool, error) {
	var (
		result sql.Result
		err    error
	)

	if delta < 0 {
		need := -delta
		result, err = m.db.ExecContext(ctx, `
			UPDATE medicines
			SET stock = stock - ?, updated_at = ?
			WHERE id = ? AND stock >= ?`,
			need, time.Now().UTC(), id, need,
		)
	} else {
		result, err = m.db.ExecContext(ctx, `
			UPDATE medicines
			SET stock = stock + ?, updated_at = ?
			WHERE id = ?`,
			delta, time.Now().UTC(), id,
		)
	}
	if err != nil {
		return false, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) SetStock(ctx context.Context, id string, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE medicines SET stock = ?, updated_at = ? WHERE id = ?`,
		quantity, time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("set stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) CreatePrescription(ctx context.Context, p domain.Prescription) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prescriptions (id, seq, patient_id, doctor_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Seq, p.PatientID, p.DoctorID, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}

	for i, item := range p.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO prescription_items (prescription_id, position, medicine_id, quantity)
			VALUES (?, ?, ?, ?)`,
			p.ID, i, item.MedicineID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert prescription item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListPrescriptions(ctx context.Context, filter port.PrescriptionFilter) ([]domain.Prescription, error) {
	query := `
		SELECT p.id, p.seq, p.patient_id, p.doctor_id, p.notes, p.created_at,
		       i.medicine_id, i.quantity
		FROM prescriptions p
		JOIN prescription_items i ON i.prescription_id = p.id`

	var conds []string
	var args []any
	if filter.PatientID != "" {
		conds = append(conds, "p.patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.DoctorID != "" {
		conds = append(conds, "p.doctor_id = ?")
		args = append(args, filter.DoctorID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.seq, i.position"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var prescriptions []domain.Prescription
	for rows.Next() {
		var (
			p    domain.Prescription
			item domain.PrescriptionItem
		)
		if err := rows.Scan(&p.ID, &p.Seq, &p.PatientID, &p.DoctorID, &p.Notes,
			&p.CreatedAt, &item.MedicineID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}

		n := len(prescriptions)
		if n > 0 && prescriptions[n-1].ID == p.ID {
			prescriptions[n-1].Items = append(prescriptions[n-1].Items, item)
			continue
		}
		p.Items = []domain.PrescriptionItem{item}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prescriptions: %w", err)
	}

	return prescriptions, nil
}
