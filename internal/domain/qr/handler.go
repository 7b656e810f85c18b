package qr

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"condotrack/internal/metrics"
	"condotrack/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/parcels/{parcelID}/qr", func(gr chi.Router) {
		gr.Post("/", issueHandler(svc))
		gr.Get("/", activeTokenHandler(svc))
	})

	// POST desde la pantalla del conserje; GET es la URL escaneada.
	// Ambos exigen rol admin/conserje: el secret solo no basta.
	r.Route("/qr/validate", func(vr chi.Router) {
		vr.Post("/", validatePostHandler(svc))
		vr.Get("/", validateGetHandler(svc))
	})
}

type issueResponse struct {
	QRDataURL string    `json:"qr_data_url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type parcelSummaryResponse struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Carrier      string    `json:"carrier"`
	ResidentName string    `json:"resident_name"`
	ReceivedAt   time.Time `json:"received_at"`
	Status       string    `json:"status"`
}

type validateResponse struct {
	Message string                `json:"message"`
	Parcel  parcelSummaryResponse `json:"parcel"`
}

type activeTokenResponse struct {
	TokenID          string    `json:"token_id"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

func issueHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !claims.CanManageDeliveries() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		issued, err := svc.Issue(r.Context(), chi.URLParam(r, "parcelID"), claims.UserID)
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			case ErrParcelNotFound:
				http.Error(w, err.Error(), http.StatusNotFound)
			case ErrNotPending:
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		metrics.QRIssuedTotal.Inc()
		writeJSON(w, http.StatusOK, issueResponse{
			QRDataURL: issued.DataURL,
			Token:     issued.Secret,
			ExpiresAt: issued.ExpiresAt,
		})
	}
}

func activeTokenHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !claims.CanManageDeliveries() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		t, err := svc.ActiveToken(r.Context(), chi.URLParam(r, "parcelID"))
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			case ErrNoActiveToken:
				http.Error(w, err.Error(), http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, activeTokenResponse{
			TokenID:          t.ID,
			Token:            t.Secret,
			ExpiresAt:        t.ExpiresAt,
			RemainingSeconds: RemainingSeconds(t.ExpiresAt, time.Now()),
		})
	}
}

func validatePostHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		validate(svc, w, r, req.Token)
	}
}

func validateGetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		validate(svc, w, r, r.URL.Query().Get("token"))
	}
}

func validate(svc *Service, w http.ResponseWriter, r *http.Request, token string) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !claims.CanManageDeliveries() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if strings.TrimSpace(token) == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}

	summary, err := svc.Validate(r.Context(), token, claims.UserID)
	if err != nil {
		metrics.QRValidationsTotal.WithLabelValues(validationResultLabel(err)).Inc()
		switch err {
		case ErrInvalidInput:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case ErrInvalidToken:
			http.Error(w, err.Error(), http.StatusNotFound)
		case ErrParcelNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		case ErrAlreadyUsed, ErrExpired, ErrAlreadyDelivered:
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	metrics.QRValidationsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, validateResponse{
		Message: "Entrega confirmada exitosamente",
		Parcel: parcelSummaryResponse{
			ID:           summary.ParcelID,
			Code:         summary.Code,
			Carrier:      summary.Carrier,
			ResidentName: summary.ResidentName,
			ReceivedAt:   summary.ReceivedAt,
			Status:       string(summary.Status),
		},
	})
}

func validationResultLabel(err error) string {
	switch err {
	case ErrInvalidToken:
		return "invalid_token"
	case ErrAlreadyUsed:
		return "already_used"
	case ErrExpired:
		return "expired"
	case ErrAlreadyDelivered:
		return "already_delivered"
	case ErrParcelNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
