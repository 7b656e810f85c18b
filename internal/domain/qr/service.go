package qr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/domain/parcels"
	"condotrack/internal/platform/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidToken     = errors.New("invalid or unknown code")
	ErrAlreadyUsed      = errors.New("code already used")
	ErrExpired          = errors.New("code expired")
	ErrParcelNotFound   = errors.New("parcel not found")
	ErrAlreadyDelivered = errors.New("parcel already delivered")
	ErrNotPending       = errors.New("parcel is not awaiting pickup")
	ErrNoActiveToken    = errors.New("no active code for parcel")
)

const defaultBaseURL = "http://localhost:8080"

type Config struct {
	// BaseURL del portal; arma la URL de canje embebida en el QR.
	BaseURL string
	Log     logger.Logger
}

type Service struct {
	tokens  TokenRepository
	parcels ParcelStore
	audit   AuditRecorder

	baseURL string
	log     logger.Logger

	now       func() time.Time
	newSecret func() (string, error)
}

func NewService(tokens TokenRepository, store ParcelStore, audit AuditRecorder, cfg Config) *Service {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewFromEnv()
	}
	return &Service{
		tokens:    tokens,
		parcels:   store,
		audit:     audit,
		baseURL:   baseURL,
		log:       log,
		now:       time.Now,
		newSecret: generateSecret,
	}
}

// Issued es el resultado de emitir un QR de retiro.
type Issued struct {
	// DataURL es la imagen PNG del QR como data URI, lista para <img>.
	DataURL   string
	Secret    string
	ExpiresAt time.Time
}

// Summary es lo que ve el conserje al confirmar una entrega.
type Summary struct {
	ParcelID     string
	Code         string
	Carrier      string
	ResidentName string
	ReceivedAt   time.Time
	Status       parcels.Status
}

// Issue emite un QR de retiro fresco para una encomienda pendiente.
//
// El orden importa: primero se eliminan los tokens anteriores de la
// encomienda y recién después se crea el nuevo. Así siempre queda a lo
// más un token vivo, incluso con re-emisiones concurrentes.
func (s *Service) Issue(ctx context.Context, parcelID, actorID string) (Issued, error) {
	parcelID = strings.TrimSpace(parcelID)
	actorID = strings.TrimSpace(actorID)
	if parcelID == "" || actorID == "" {
		return Issued{}, ErrInvalidInput
	}

	p, err := s.parcels.GetByID(ctx, parcelID)
	if err != nil {
		return Issued{}, ErrParcelNotFound
	}
	if p.Status != parcels.StatusPending {
		return Issued{}, ErrNotPending
	}

	if err := s.tokens.DeleteByParcel(ctx, parcelID); err != nil {
		return Issued{}, err
	}

	secret, err := s.newSecret()
	if err != nil {
		return Issued{}, err
	}

	now := s.now()
	t := Token{
		ID:        uuid.NewString(),
		ParcelID:  parcelID,
		Secret:    secret,
		ExpiresAt: now.Add(Validity),
		Used:      false,
		CreatedAt: now,
	}

	if err := s.tokens.Create(ctx, t); err != nil {
		return Issued{}, err
	}

	dataURL, err := renderDataURL(s.validationURL(secret))
	if err != nil {
		return Issued{}, err
	}

	s.record(ctx, parcelID, actorID, deliverylog.ActionQRIssued, map[string]any{
		"expiraEn": t.ExpiresAt.Format(time.RFC3339),
	})

	return Issued{
		DataURL:   dataURL,
		Secret:    secret,
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// Validate canjea un token y confirma la entrega, exactamente una vez.
//
// El orden de chequeos es estricto y cada falla corta sin mutar nada:
// token desconocido, ya usado, expirado, encomienda inexistente, ya
// entregada. "Usado" se chequea antes que "expirado": un token usado y
// expirado reporta el estado terminal que ocurrió primero.
func (s *Service) Validate(ctx context.Context, secret, actorID string) (Summary, error) {
	secret = strings.TrimSpace(secret)
	actorID = strings.TrimSpace(actorID)
	if secret == "" || actorID == "" {
		return Summary{}, ErrInvalidInput
	}

	t, err := s.tokens.GetBySecret(ctx, secret)
	if err != nil {
		return Summary{}, ErrInvalidToken
	}
	if t.Used {
		return Summary{}, ErrAlreadyUsed
	}

	now := s.now()
	if now.After(t.ExpiresAt) {
		return Summary{}, ErrExpired
	}

	p, err := s.parcels.GetByID(ctx, t.ParcelID)
	if err != nil {
		return Summary{}, ErrParcelNotFound
	}
	if p.Status == parcels.StatusDelivered {
		return Summary{}, ErrAlreadyDelivered
	}

	// Commit: el CAS sobre used decide al ganador entre validaciones
	// concurrentes del mismo secret. El perdedor ve already-used.
	flipped, err := s.tokens.MarkUsed(ctx, t.ID)
	if err != nil {
		return Summary{}, err
	}
	if !flipped {
		return Summary{}, ErrAlreadyUsed
	}

	delivered, err := s.parcels.MarkDelivered(ctx, t.ParcelID, now)
	if err != nil {
		return Summary{}, err
	}
	if !delivered {
		// Otro token completó la entrega entre medio. El token ya quedó
		// consumido; el caller ve un error consistente.
		return Summary{}, ErrAlreadyDelivered
	}

	// Auditoría best-effort: una falla acá se loggea pero nunca revierte
	// la entrega ya confirmada.
	s.record(ctx, t.ParcelID, actorID, deliverylog.ActionQRValidated, map[string]any{
		"tokenId":    t.ID,
		"validadoEn": now.Format(time.RFC3339),
	})

	return Summary{
		ParcelID:     p.ID,
		Code:         p.Code,
		Carrier:      p.Carrier,
		ResidentName: p.ResidentName,
		ReceivedAt:   p.ReceivedAt,
		Status:       parcels.StatusDelivered,
	}, nil
}

// ActiveToken devuelve el token vivo de una encomienda, si existe.
func (s *Service) ActiveToken(ctx context.Context, parcelID string) (Token, error) {
	parcelID = strings.TrimSpace(parcelID)
	if parcelID == "" {
		return Token{}, ErrInvalidInput
	}
	t, err := s.tokens.GetActiveByParcel(ctx, parcelID, s.now())
	if err != nil {
		return Token{}, ErrNoActiveToken
	}
	return t, nil
}

func (s *Service) validationURL(secret string) string {
	return fmt.Sprintf("%s/qr/validate?token=%s", s.baseURL, secret)
}

func (s *Service) record(ctx context.Context, parcelID, actorID string, action deliverylog.Action, details map[string]any) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(ctx, deliverylog.RecordInput{
		ParcelID: parcelID,
		UserID:   actorID,
		Action:   action,
		Details:  details,
	}); err != nil {
		s.log.Warn("audit append failed", map[string]any{
			"parcel_id": parcelID,
			"action":    string(action),
			"error":     err.Error(),
		})
	}
}

// generateSecret produce 32 bytes de crypto/rand en hex (256 bits).
// El secret es la única credencial de canje; su entropía es toda la
// seguridad del protocolo.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
