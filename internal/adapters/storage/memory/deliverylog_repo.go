package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"condotrack/internal/domain/deliverylog"
)

type logRepo struct {
	mu      sync.RWMutex
	entries []deliverylog.Entry
}

func NewDeliveryLogRepo() deliverylog.Repository {
	return &logRepo{
		entries: make([]deliverylog.Entry, 0),
	}
}

func (r *logRepo) Append(ctx context.Context, e deliverylog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return errors.New("entry id required")
	}
	// Append-only: nunca se actualiza ni se borra.
	r.entries = append(r.entries, e)
	return nil
}

func (r *logRepo) ListByParcel(ctx context.Context, parcelID string) ([]deliverylog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]deliverylog.Entry, 0)
	for _, e := range r.entries {
		if e.ParcelID == parcelID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *logRepo) ListRecent(ctx context.Context, limit int) ([]deliverylog.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]deliverylog.Entry, len(r.entries))
	copy(out, r.entries)

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
