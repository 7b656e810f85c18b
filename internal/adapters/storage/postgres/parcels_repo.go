package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"condotrack/internal/domain/parcels"
)

type ParcelsRepo struct {
	db *sql.DB
}

func NewParcelsRepo(db *sql.DB) *ParcelsRepo {
	return &ParcelsRepo{db: db}
}

const parcelColumns = `
	id, codigo, transportista,
	"residenteId", "residenteNombre",
	estado, prioridad,
	"fechaRecepcion", "fechaEntrega"
`

func (r *ParcelsRepo) Create(ctx context.Context, p parcels.Parcel) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encomiendas (
			id, codigo, transportista,
			"residenteId", "residenteNombre",
			estado, prioridad,
			"fechaRecepcion", "fechaEntrega"
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		p.ID,
		p.Code,
		p.Carrier,
		toNullString(p.ResidentID),
		p.ResidentName,
		string(p.Status),
		string(p.Priority),
		p.ReceivedAt,
		toNullTime(p.DeliveredAt),
	)
	return err
}

func (r *ParcelsRepo) GetByID(ctx context.Context, id string) (parcels.Parcel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return parcels.Parcel{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+parcelColumns+`
		FROM encomiendas
		WHERE id = $1
	`, id)

	p, err := scanParcel(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return parcels.Parcel{}, ErrNotFound
		}
		return parcels.Parcel{}, err
	}
	return p, nil
}

func (r *ParcelsRepo) List(ctx context.Context, filter parcels.ListFilter) ([]parcels.Parcel, error) {
	sb := strings.Builder{}
	sb.WriteString(`
		SELECT ` + parcelColumns + `
		FROM encomiendas
		WHERE 1=1
	`)

	args := []any{}
	argN := 1

	if filter.Status != "" {
		sb.WriteString(fmt.Sprintf(" AND estado = $%d", argN))
		args = append(args, string(filter.Status))
		argN++
	}
	if strings.TrimSpace(filter.Carrier) != "" {
		sb.WriteString(fmt.Sprintf(" AND transportista ILIKE $%d", argN))
		args = append(args, "%"+strings.TrimSpace(filter.Carrier)+"%")
		argN++
	}
	if strings.TrimSpace(filter.ResidentName) != "" {
		sb.WriteString(fmt.Sprintf(` AND "residenteNombre" ILIKE $%d`, argN))
		args = append(args, "%"+strings.TrimSpace(filter.ResidentName)+"%")
		argN++
	}
	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(` AND "fechaRecepcion" >= $%d`, argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(` AND "fechaRecepcion" <= $%d`, argN))
		args = append(args, *filter.To)
		argN++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	sb.WriteString(` ORDER BY "fechaRecepcion" DESC`)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanParcels(rows)
}

func (r *ParcelsRepo) ListByResident(ctx context.Context, residentID string) ([]parcels.Parcel, error) {
	residentID = strings.TrimSpace(residentID)
	if residentID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+parcelColumns+`
		FROM encomiendas
		WHERE "residenteId" = $1
		ORDER BY "fechaRecepcion" DESC
	`, residentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanParcels(rows)
}

// MarkDelivered actualiza condicionado al estado actual: el WHERE sobre
// estado='pendiente' + RowsAffected hace de compare-and-set. Dos entregas
// concurrentes de la misma encomienda: solo una fila cambia.
func (r *ParcelsRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE encomiendas
		SET estado = 'entregado', "fechaEntrega" = $2
		WHERE id = $1 AND estado = 'pendiente'
	`, id, at)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ParcelsRepo) UpdateStatus(ctx context.Context, id string, status parcels.Status) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE encomiendas
		SET estado = $2
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (parcels.Parcel, error) {
	var p parcels.Parcel
	var residentID sql.NullString
	var status, priority string
	var deliveredAt sql.NullTime

	if err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Carrier,
		&residentID,
		&p.ResidentName,
		&status,
		&priority,
		&p.ReceivedAt,
		&deliveredAt,
	); err != nil {
		return parcels.Parcel{}, err
	}

	if residentID.Valid {
		p.ResidentID = residentID.String
	}
	p.Status = parcels.Status(status)
	p.Priority = parcels.Priority(priority)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		p.DeliveredAt = &t
	}
	return p, nil
}

func scanParcels(rows *sql.Rows) ([]parcels.Parcel, error) {
	out := make([]parcels.Parcel, 0)
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
