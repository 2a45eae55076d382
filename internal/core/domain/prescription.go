package domain

import "time"

type PrescriptionItem struct {
	MedicineID string
	Quantity   int
}

// Prescription is immutable once created; there is no update or delete path.
type Prescription struct {
	ID        string
	Seq       int64 // unique and increasing within KindPrescription
	PatientID string
	DoctorID  string
	Items     []PrescriptionItem
	Notes     string
	CreatedAt time.Time
}
