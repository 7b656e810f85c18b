package parcels

import (
	"context"
	"time"
)

type ListFilter struct {
	Status       Status
	Carrier      string
	ResidentName string
	From         *time.Time
	To           *time.Time
	Limit        int
}

type Repository interface {
	Create(ctx context.Context, p Parcel) error
	GetByID(ctx context.Context, id string) (Parcel, error)
	List(ctx context.Context, filter ListFilter) ([]Parcel, error)
	ListByResident(ctx context.Context, residentID string) ([]Parcel, error)

	// MarkDelivered pasa la encomienda a entregado solo si sigue pendiente.
	// Devuelve false si ninguna fila cambió (ya entregada o en incidencia).
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
}
