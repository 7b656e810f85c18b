package deliverylog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

const defaultRecentLimit = 100

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type RecordInput struct {
	ParcelID string
	UserID   string
	Action   Action

	// Details se serializa a JSON. Opcional.
	Details map[string]any

	IPAddress string
	UserAgent string
}

// Record agrega una entrada de auditoría. Las entradas son inmutables.
func (s *Service) Record(ctx context.Context, in RecordInput) (Entry, error) {
	parcelID := strings.TrimSpace(in.ParcelID)
	userID := strings.TrimSpace(in.UserID)

	if parcelID == "" || userID == "" || in.Action == "" {
		return Entry{}, ErrInvalidInput
	}

	var details string
	if len(in.Details) > 0 {
		b, err := json.Marshal(in.Details)
		if err != nil {
			return Entry{}, ErrInvalidInput
		}
		details = string(b)
	}

	e := Entry{
		ID:        uuid.NewString(),
		ParcelID:  parcelID,
		UserID:    userID,
		Action:    in.Action,
		Details:   details,
		IPAddress: strings.TrimSpace(in.IPAddress),
		UserAgent: strings.TrimSpace(in.UserAgent),
		CreatedAt: s.now(),
	}

	if err := s.repo.Append(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Service) ListByParcel(ctx context.Context, parcelID string) ([]Entry, error) {
	parcelID = strings.TrimSpace(parcelID)
	if parcelID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByParcel(ctx, parcelID)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.repo.ListRecent(ctx, limit)
}
