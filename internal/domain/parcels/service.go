package parcels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/platform/logger"
	"condotrack/internal/ports/notify"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("parcel not found")
	ErrBadState     = errors.New("parcel is not awaiting pickup")
)

// AuditRecorder evita importar el paquete del servicio de logs completo;
// solo necesitamos registrar entradas.
type AuditRecorder interface {
	Record(ctx context.Context, in deliverylog.RecordInput) (deliverylog.Entry, error)
}

type Service struct {
	repo     Repository
	audit    AuditRecorder
	notifier notify.Sender
	log      logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, audit AuditRecorder, notifier notify.Sender, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewFromEnv()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Code         string
	Carrier      string
	ResidentID   string
	ResidentName string

	// ResidentEmail es opcional; si viene, se notifica la recepción.
	ResidentEmail string

	Priority Priority
}

// Register da de alta una encomienda recibida en conserjería.
// Audita la recepción y notifica al residente (ambos best-effort).
func (s *Service) Register(ctx context.Context, actorID string, in RegisterInput) (Parcel, error) {
	actorID = strings.TrimSpace(actorID)
	code := strings.TrimSpace(in.Code)
	carrier := strings.TrimSpace(in.Carrier)
	residentName := strings.TrimSpace(in.ResidentName)

	if actorID == "" || code == "" || carrier == "" || residentName == "" {
		return Parcel{}, ErrInvalidInput
	}

	priority := in.Priority
	switch priority {
	case "":
		priority = PriorityNormal
	case PriorityNormal, PriorityUrgent:
	default:
		return Parcel{}, ErrInvalidInput
	}

	now := s.now()
	p := Parcel{
		ID:           uuid.NewString(),
		Code:         code,
		Carrier:      carrier,
		ResidentID:   strings.TrimSpace(in.ResidentID),
		ResidentName: residentName,
		Status:       StatusPending,
		Priority:     priority,
		ReceivedAt:   now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Parcel{}, err
	}

	s.record(ctx, p.ID, actorID, deliverylog.ActionReceived, map[string]any{
		"codigo":        p.Code,
		"transportista": p.Carrier,
	})

	s.notifyReception(ctx, p, actorID, strings.TrimSpace(in.ResidentEmail))

	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Parcel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Parcel{}, ErrInvalidInput
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Parcel{}, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Parcel, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) ListByResident(ctx context.Context, residentID string) ([]Parcel, error) {
	residentID = strings.TrimSpace(residentID)
	if residentID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByResident(ctx, residentID)
}

// MarkDelivered es el commit de la validación QR: pendiente -> entregado,
// una sola vez. Devuelve false si otra entrega ganó la carrera.
func (s *Service) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrInvalidInput
	}
	return s.repo.MarkDelivered(ctx, id, at)
}

// MarkIncident marca una encomienda pendiente como incidencia.
func (s *Service) MarkIncident(ctx context.Context, id, actorID, note string) (Parcel, error) {
	id = strings.TrimSpace(id)
	actorID = strings.TrimSpace(actorID)
	if id == "" || actorID == "" {
		return Parcel{}, ErrInvalidInput
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Parcel{}, ErrNotFound
	}
	if p.Status != StatusPending {
		return Parcel{}, ErrBadState
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusIncident); err != nil {
		return Parcel{}, err
	}
	p.Status = StatusIncident

	details := map[string]any{}
	if note = strings.TrimSpace(note); note != "" {
		details["nota"] = note
	}
	s.record(ctx, p.ID, actorID, deliverylog.ActionIncident, details)

	return p, nil
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

func (s *Service) notifyReception(ctx context.Context, p Parcel, actorID, email string) {
	if s.notifier == nil || email == "" {
		return
	}

	msg := notify.Message{
		ResidentID: p.ResidentID,
		Email:      email,
		Subject:    "Tienes una encomienda en conserjería",
		Body: fmt.Sprintf("Hola %s, llegó una encomienda de %s (código %s). Puedes retirarla en conserjería.",
			p.ResidentName, p.Carrier, p.Code),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("reception notification failed", map[string]any{
			"parcel_id": p.ID,
			"error":     err.Error(),
		})
		return
	}

	s.record(ctx, p.ID, actorID, deliverylog.ActionNotificationSent, map[string]any{
		"email": email,
	})
}
