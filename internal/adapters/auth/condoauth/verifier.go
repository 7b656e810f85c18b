package condoauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"condotrack/internal/ports/auth"
)

var ErrTokenEmpty = errors.New("token is empty")

// Verifier implementa auth.AuthVerifier contra el servicio de identidad.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	claims, err := v.client.VerifyToken(ctx, token)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("condoauth verify failed: %w", err)
	}

	if claims.UserID == "" {
		return auth.Claims{}, errors.New("condoauth claims missing user id")
	}
	switch claims.Role {
	case auth.RoleAdmin, auth.RoleConserje, auth.RoleResidente:
	default:
		return auth.Claims{}, fmt.Errorf("condoauth unknown role %q", claims.Role)
	}

	return claims, nil
}
