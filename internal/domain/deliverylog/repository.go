package deliverylog

import "context"

type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListByParcel(ctx context.Context, parcelID string) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
