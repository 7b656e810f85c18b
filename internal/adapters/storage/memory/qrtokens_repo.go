package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"condotrack/internal/domain/qr"
)

type tokenRepo struct {
	mu       sync.RWMutex
	byID     map[string]qr.Token
	bySecret map[string]string // secret -> token id
}

func NewQRTokensRepo() qr.TokenRepository {
	return &tokenRepo{
		byID:     make(map[string]qr.Token),
		bySecret: make(map[string]string),
	}
}

func (r *tokenRepo) Create(ctx context.Context, t qr.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" || t.Secret == "" {
		return errors.New("token id and secret required")
	}
	if _, exists := r.byID[t.ID]; exists {
		return errors.New("token already exists")
	}
	if _, exists := r.bySecret[t.Secret]; exists {
		return errors.New("secret already exists")
	}

	r.byID[t.ID] = t
	r.bySecret[t.Secret] = t.ID
	return nil
}

func (r *tokenRepo) GetBySecret(ctx context.Context, secret string) (qr.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySecret[secret]
	if !ok {
		return qr.Token{}, ErrNotFound
	}
	t, ok := r.byID[id]
	if !ok {
		return qr.Token{}, ErrNotFound
	}
	return t, nil
}

func (r *tokenRepo) DeleteByParcel(ctx context.Context, parcelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.byID {
		if t.ParcelID == parcelID {
			delete(r.byID, id)
			delete(r.bySecret, t.Secret)
		}
	}
	return nil
}

// MarkUsed hace el test-and-set bajo el write lock: de dos validaciones
// concurrentes, exactamente una ve el flip.
func (r *tokenRepo) MarkUsed(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[tokenID]
	if !ok {
		return false, ErrNotFound
	}
	if t.Used {
		return false, nil
	}

	t.Used = true
	r.byID[tokenID] = t
	return true, nil
}

func (r *tokenRepo) GetActiveByParcel(ctx context.Context, parcelID string, now time.Time) (qr.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.ParcelID == parcelID && t.Live(now) {
			return t, nil
		}
	}
	return qr.Token{}, ErrNotFound
}
