package postgres

import (
	"context"
	"database/sql"
	"strings"

	"condotrack/internal/domain/deliverylog"
)

type DeliveryLogRepo struct {
	db *sql.DB
}

func NewDeliveryLogRepo(db *sql.DB) *DeliveryLogRepo {
	return &DeliveryLogRepo{db: db}
}

// Append inserta una entrada. La tabla es append-only: este repo no
// expone UPDATE ni DELETE.
func (r *DeliveryLogRepo) Append(ctx context.Context, e deliverylog.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO logs_entrega (
			id, "encomiendaId", "usuarioId", accion,
			detalles, "ipAddress", "userAgent", "createdAt"
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		e.ID,
		e.ParcelID,
		e.UserID,
		string(e.Action),
		toNullString(e.Details),
		toNullString(e.IPAddress),
		toNullString(e.UserAgent),
		e.CreatedAt,
	)
	return err
}

func (r *DeliveryLogRepo) ListByParcel(ctx context.Context, parcelID string) ([]deliverylog.Entry, error) {
	parcelID = strings.TrimSpace(parcelID)
	if parcelID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, "encomiendaId", "usuarioId", accion,
		       detalles, "ipAddress", "userAgent", "createdAt"
		FROM logs_entrega
		WHERE "encomiendaId" = $1
		ORDER BY "createdAt" ASC
	`, parcelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *DeliveryLogRepo) ListRecent(ctx context.Context, limit int) ([]deliverylog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, "encomiendaId", "usuarioId", accion,
		       detalles, "ipAddress", "userAgent", "createdAt"
		FROM logs_entrega
		ORDER BY "createdAt" DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]deliverylog.Entry, error) {
	out := make([]deliverylog.Entry, 0)
	for rows.Next() {
		var e deliverylog.Entry
		var action string
		var details, ip, ua sql.NullString

		if err := rows.Scan(
			&e.ID,
			&e.ParcelID,
			&e.UserID,
			&action,
			&details,
			&ip,
			&ua,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}

		e.Action = deliverylog.Action(action)
		if details.Valid {
			e.Details = details.String
		}
		if ip.Valid {
			e.IPAddress = ip.String
		}
		if ua.Valid {
			e.UserAgent = ua.String
		}

		out = append(out, e)
	}
	return out, rows.Err()
}
