package qr

import (
	"context"
	"time"

	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/domain/parcels"
)

type TokenRepository interface {
	Create(ctx context.Context, t Token) error
	GetBySecret(ctx context.Context, secret string) (Token, error)

	// DeleteByParcel invalida todos los tokens de una encomienda.
	// Se ejecuta antes de crear uno nuevo: a lo más un token vivo por
	// encomienda.
	DeleteByParcel(ctx context.Context, parcelID string) error

	// MarkUsed es el compare-and-set del protocolo: marca used=true solo
	// si used==false y reporta si la fila cambió. De dos validaciones
	// concurrentes, exactamente una recibe true.
	MarkUsed(ctx context.Context, tokenID string) (bool, error)

	GetActiveByParcel(ctx context.Context, parcelID string, now time.Time) (Token, error)
}

// ParcelStore es lo que el emisor/validador necesita del módulo de
// encomiendas. *parcels.Service lo implementa.
type ParcelStore interface {
	GetByID(ctx context.Context, id string) (parcels.Parcel, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
}

// AuditRecorder registra entradas de auditoría. *deliverylog.Service lo
// implementa.
type AuditRecorder interface {
	Record(ctx context.Context, in deliverylog.RecordInput) (deliverylog.Entry, error)
}
