package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"condotrack/internal/domain/qr"
)

type QRTokensRepo struct {
	db *sql.DB
}

func NewQRTokensRepo(db *sql.DB) *QRTokensRepo {
	return &QRTokensRepo{db: db}
}

func (r *QRTokensRepo) Create(ctx context.Context, t qr.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens_qr (
			id, "encomiendaId", token, usado, "expiraEn", "createdAt"
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		t.ID,
		t.ParcelID,
		t.Secret,
		t.Used,
		t.ExpiresAt,
		t.CreatedAt,
	)
	return err
}

func (r *QRTokensRepo) GetBySecret(ctx context.Context, secret string) (qr.Token, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return qr.Token{}, ErrNotFound
	}

	// token tiene índice único; el secret es la única credencial.
	row := r.db.QueryRowContext(ctx, `
		SELECT id, "encomiendaId", token, usado, "expiraEn", "createdAt"
		FROM tokens_qr
		WHERE token = $1
	`, secret)

	var t qr.Token
	if err := row.Scan(
		&t.ID,
		&t.ParcelID,
		&t.Secret,
		&t.Used,
		&t.ExpiresAt,
		&t.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return qr.Token{}, ErrNotFound
		}
		return qr.Token{}, err
	}
	return t, nil
}

func (r *QRTokensRepo) DeleteByParcel(ctx context.Context, parcelID string) error {
	parcelID = strings.TrimSpace(parcelID)
	if parcelID == "" {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tokens_qr
		WHERE "encomiendaId" = $1
	`, parcelID)
	return err
}

// MarkUsed es el compare-and-set: el WHERE usado = false garantiza que de
// dos validaciones concurrentes solo una vea RowsAffected = 1.
func (r *QRTokensRepo) MarkUsed(ctx context.Context, tokenID string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return false, ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens_qr
		SET usado = true
		WHERE id = $1 AND usado = false
	`, tokenID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *QRTokensRepo) GetActiveByParcel(ctx context.Context, parcelID string, now time.Time) (qr.Token, error) {
	parcelID = strings.TrimSpace(parcelID)
	if parcelID == "" {
		return qr.Token{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, "encomiendaId", token, usado, "expiraEn", "createdAt"
		FROM tokens_qr
		WHERE "encomiendaId" = $1
		  AND usado = false
		  AND "expiraEn" > $2
		ORDER BY "createdAt" DESC
		LIMIT 1
	`, parcelID, now)

	var t qr.Token
	if err := row.Scan(
		&t.ID,
		&t.ParcelID,
		&t.Secret,
		&t.Used,
		&t.ExpiresAt,
		&t.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return qr.Token{}, ErrNotFound
		}
		return qr.Token{}, err
	}
	return t, nil
}
