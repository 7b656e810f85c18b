package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"condotrack/internal/domain/parcels"
)

var ErrNotFound = errors.New("not found")

type parcelRepo struct {
	mu   sync.RWMutex
	byID map[string]parcels.Parcel
}

func NewParcelsRepo() parcels.Repository {
	return &parcelRepo{
		byID: make(map[string]parcels.Parcel),
	}
}

func (r *parcelRepo) Create(ctx context.Context, p parcels.Parcel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		return errors.New("parcel id required")
	}
	if _, exists := r.byID[p.ID]; exists {
		return errors.New("parcel already exists")
	}
	r.byID[p.ID] = p
	return nil
}

func (r *parcelRepo) GetByID(ctx context.Context, id string) (parcels.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return parcels.Parcel{}, ErrNotFound
	}
	return p, nil
}

func (r *parcelRepo) List(ctx context.Context, filter parcels.ListFilter) ([]parcels.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]parcels.Parcel, 0)
	for _, p := range r.byID {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Carrier != "" && !containsFold(p.Carrier, filter.Carrier) {
			continue
		}
		if filter.ResidentName != "" && !containsFold(p.ResidentName, filter.ResidentName) {
			continue
		}
		if filter.From != nil && p.ReceivedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && p.ReceivedAt.After(*filter.To) {
			continue
		}
		out = append(out, p)
	}

	// Más recientes primero, igual que el portal.
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *parcelRepo) ListByResident(ctx context.Context, residentID string) ([]parcels.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]parcels.Parcel, 0)
	for _, p := range r.byID {
		if p.ResidentID == residentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// MarkDelivered es el test-and-set sobre el estado: solo transiciona si la
// encomienda sigue pendiente, bajo el write lock.
func (r *parcelRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != parcels.StatusPending {
		return false, nil
	}

	p.Status = parcels.StatusDelivered
	t := at
	p.DeliveredAt = &t
	r.byID[id] = p
	return true, nil
}

func (r *parcelRepo) UpdateStatus(ctx context.Context, id string, status parcels.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	r.byID[id] = p
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
