package notify

import "context"

// Message es una notificación dirigida a un residente.
type Message struct {
	ResidentID string
	Email      string
	Subject    string
	Body       string
}

// Sender entrega notificaciones (email u otro canal).
// La entrega es best-effort: el flujo de encomiendas nunca se bloquea
// por una notificación fallida.
type Sender interface {
	Send(ctx context.Context, m Message) error
}
