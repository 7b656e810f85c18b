package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas Prometheus del servicio de conserjería.
var (
	ParcelsRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "condotrack_parcels_registered_total",
		Help: "Total number of parcels registered at the front desk",
	})

	QRIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "condotrack_qr_issued_total",
		Help: "Total number of pickup QR codes issued",
	})

	// Resultados: success, invalid_token, already_used, expired,
	// already_delivered, not_found, error.
	QRValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "condotrack_qr_validations_total",
		Help: "Total number of QR validation attempts by result",
	}, []string{"result"})
)
