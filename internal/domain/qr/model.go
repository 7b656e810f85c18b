package qr

import "time"

// Validity es la ventana de vigencia de un QR de retiro.
const Validity = 30 * time.Minute

// Token es el credencial de retiro embebido en el QR.
// El secret es la única credencial: 32 bytes aleatorios en hex.
type Token struct {
	ID       string
	ParcelID string

	// Secret es único entre todos los tokens, vivos o históricos.
	Secret string

	ExpiresAt time.Time

	// Used pasa de false a true exactamente una vez (CAS en el repo).
	Used bool

	CreatedAt time.Time
}

// Live indica si el token todavía puede canjearse.
func (t Token) Live(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// RemainingSeconds devuelve los segundos de vigencia que le quedan a un
// token, para el contador regresivo del cliente. Nunca negativo.
func RemainingSeconds(expiresAt, now time.Time) int64 {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
