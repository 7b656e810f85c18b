package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"condotrack/internal/platform/httpclient"
	"condotrack/internal/ports/notify"
)

var ErrNotConfigured = errors.New("webhook sender not configured")

// Sender entrega notificaciones vía un webhook HTTP (el servicio de
// emails del condominio arma la plantilla; acá solo va el payload).
type Sender struct {
	http *httpclient.Client
	url  string
}

func New(url string, timeout time.Duration) (*Sender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrNotConfigured
	}
	return &Sender{
		http: httpclient.New(timeout),
		url:  url,
	}, nil
}

// NewWithClient permite inyectar el httpclient (tests).
func NewWithClient(url string, hc *httpclient.Client) *Sender {
	return &Sender{http: hc, url: strings.TrimSpace(url)}
}

type payload struct {
	ResidentID string `json:"resident_id,omitempty"`
	Email      string `json:"email"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func (s *Sender) Send(ctx context.Context, m notify.Message) error {
	if s == nil || s.http == nil || s.url == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(m.Email) == "" {
		return errors.New("webhook: message email required")
	}

	return s.http.DoJSON(ctx, http.MethodPost, s.url, nil, payload{
		ResidentID: m.ResidentID,
		Email:      m.Email,
		Subject:    m.Subject,
		Body:       m.Body,
	}, nil)
}
