package parcels

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"condotrack/internal/metrics"
	"condotrack/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/parcels", func(pr chi.Router) {
		pr.Post("/", registerParcelHandler(svc))
		pr.Get("/", listParcelsHandler(svc))
		pr.Get("/{parcelID}", getParcelHandler(svc))
		pr.Post("/{parcelID}/incident", markIncidentHandler(svc))
	})

	// Residente: sus propias encomiendas
	r.Get("/me/parcels", listMyParcelsHandler(svc))
}

type registerParcelRequest struct {
	Code          string `json:"code"`
	Carrier       string `json:"carrier"`
	ResidentID    string `json:"resident_id"`
	ResidentName  string `json:"resident_name"`
	ResidentEmail string `json:"resident_email"`
	Priority      string `json:"priority"`
}

type markIncidentRequest struct {
	Note string `json:"note"`
}

type parcelResponse struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Carrier      string     `json:"carrier"`
	ResidentID   string     `json:"resident_id,omitempty"`
	ResidentName string     `json:"resident_name"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	ReceivedAt   time.Time  `json:"received_at"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

func registerParcelHandler(svc *Service) http.HandlerFunc {
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

		var req registerParcelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		p, err := svc.Register(r.Context(), claims.UserID, RegisterInput{
			Code:          req.Code,
			Carrier:       req.Carrier,
			ResidentID:    req.ResidentID,
			ResidentName:  req.ResidentName,
			ResidentEmail: req.ResidentEmail,
			Priority:      Priority(strings.TrimSpace(req.Priority)),
		})
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		metrics.ParcelsRegisteredTotal.Inc()
		writeJSON(w, http.StatusCreated, toParcelResponse(p))
	}
}

func listParcelsHandler(svc *Service) http.HandlerFunc {
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

		filter, err := parseListFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, err := svc.List(r.Context(), filter)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toParcelResponses(items))
	}
}

func getParcelHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		p, err := svc.GetByID(r.Context(), chi.URLParam(r, "parcelID"))
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			case ErrNotFound:
				http.Error(w, "parcel not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		// Residente solo ve sus propias encomiendas.
		if !claims.CanManageDeliveries() && p.ResidentID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		writeJSON(w, http.StatusOK, toParcelResponse(p))
	}
}

func markIncidentHandler(svc *Service) http.HandlerFunc {
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

		var req markIncidentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body opcional
		}

		p, err := svc.MarkIncident(r.Context(), chi.URLParam(r, "parcelID"), claims.UserID, req.Note)
		if err != nil {
			switch err {
			case ErrInvalidInput:
				http.Error(w, err.Error(), http.StatusBadRequest)
			case ErrNotFound:
				http.Error(w, "parcel not found", http.StatusNotFound)
			case ErrBadState:
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, toParcelResponse(p))
	}
}

func listMyParcelsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByResident(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toParcelResponses(items))
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()

	filter := ListFilter{
		Carrier:      strings.TrimSpace(q.Get("carrier")),
		ResidentName: strings.TrimSpace(q.Get("resident")),
	}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "todos" {
		filter.Status = Status(raw)
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilter{}, err
		}
		filter.From = &t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilter{}, err
		}
		filter.To = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ListFilter{}, err
		}
		filter.Limit = n
	}

	return filter, nil
}

func toParcelResponse(p Parcel) parcelResponse {
	return parcelResponse{
		ID:           p.ID,
		Code:         p.Code,
		Carrier:      p.Carrier,
		ResidentID:   p.ResidentID,
		ResidentName: p.ResidentName,
		Status:       p.Status,
		Priority:     p.Priority,
		ReceivedAt:   p.ReceivedAt,
		DeliveredAt:  p.DeliveredAt,
	}
}

func toParcelResponses(items []Parcel) []parcelResponse {
	out := make([]parcelResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toParcelResponse(p))
	}
	return out
}

// writeJSON está duplicado intencionalmente en handlers de distintos módulos
// para evitar crear helpers compartidos demasiado pronto.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
