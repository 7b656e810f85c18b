package parcels

import "time"

// Status define el estado de una encomienda.
// Los valores coinciden con la tabla encomiendas del portal.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusDelivered Status = "entregado"
	StatusIncident  Status = "incidencia"
)

// Priority define la prioridad de entrega.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgente"
)

// Parcel representa una encomienda recibida en conserjería.
type Parcel struct {
	ID string

	// Code es el código visible en la etiqueta del paquete.
	Code    string
	Carrier string

	// ResidentID puede ser vacío si el residente aún no tiene cuenta;
	// ResidentName siempre está presente.
	ResidentID   string
	ResidentName string

	Status   Status
	Priority Priority

	ReceivedAt time.Time

	// DeliveredAt se setea exactamente una vez, cuando Status pasa a
	// entregado. Invariante: DeliveredAt != nil <=> Status == entregado.
	DeliveredAt *time.Time
}
