package deliverylog

import "time"

// Action identifica el tipo de evento registrado.
// Los valores coinciden con la tabla logs_entrega del portal.
type Action string

const (
	ActionReceived         Action = "recepcion"
	ActionDelivered        Action = "entrega"
	ActionIncident         Action = "incidencia"
	ActionQRIssued         Action = "qr_generado"
	ActionQRValidated      Action = "qr_validado"
	ActionNotificationSent Action = "notificacion_enviada"
	ActionStatusUpdated    Action = "estado_actualizado"
)

// Entry es un registro de auditoría append-only.
// Nunca se modifica ni se borra desde este servicio.
type Entry struct {
	ID       string
	ParcelID string
	UserID   string
	Action   Action

	// Details es un payload JSON serializado (puede estar vacío).
	Details string

	IPAddress string
	UserAgent string

	CreatedAt time.Time
}
