package auth

// Role define los roles del condominio.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleConserje  Role = "conserje"
	RoleResidente Role = "residente"
)

// Claims representa la información extraída del token de sesión.
type Claims struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

// CanManageDeliveries indica si el usuario puede registrar encomiendas,
// generar QR y validar entregas.
func (c Claims) CanManageDeliveries() bool {
	return c.Role == RoleAdmin || c.Role == RoleConserje
}

// IsAdmin indica acceso a vistas administrativas (logs completos).
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
