package domain

import "time"

// Kind discriminates the entity kinds sharing the storage partition.
type Kind string

const (
	KindMedicine     Kind = "medicine"
	KindPrescription Kind = "prescription"
)

type Medicine struct {
	ID        string // storage-assigned, immutable
	Seq       int64  // unique and increasing within KindMedicine
	Name      string
	SKU       string
	UnitPrice float64
	Unit      string
	Stock     int // invariant: never negative
	CreatedAt time.Time
	UpdatedAt time.Time
}
