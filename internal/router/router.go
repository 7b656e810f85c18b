package router

import (
	"database/sql"
	"net/http"
	"os"

	mem "condotrack/internal/adapters/storage/memory"
	pg "condotrack/internal/adapters/storage/postgres"
	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/domain/parcels"
	"condotrack/internal/domain/qr"
	"condotrack/internal/middleware"
	"condotrack/internal/platform/logger"
	"condotrack/internal/ports/auth"
	"condotrack/internal/ports/notify"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, intenta DB_DSN y si
	// tampoco hay, in-memory.
	DB *sql.DB

	// BaseURL del portal para la URL de canje embebida en el QR.
	BaseURL string

	// Opcional: sender de notificaciones (nil => no se notifica).
	Notifier notify.Sender

	Log logger.Logger
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	var (
		parcelRepo parcels.Repository
		tokenRepo  qr.TokenRepository
		logRepo    deliverylog.Repository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("postgres open failed, falling back to memory", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}

	if db != nil {
		parcelRepo = pg.NewParcelsRepo(db)
		tokenRepo = pg.NewQRTokensRepo(db)
		logRepo = pg.NewDeliveryLogRepo(db)
	} else {
		parcelRepo = mem.NewParcelsRepo()
		tokenRepo = mem.NewQRTokensRepo()
		logRepo = mem.NewDeliveryLogRepo()
	}

	// Services por módulo
	logsSvc := deliverylog.NewService(logRepo)
	parcelsSvc := parcels.NewService(parcelRepo, logsSvc, opts.Notifier, log)
	qrSvc := qr.NewService(tokenRepo, parcelsSvc, logsSvc, qr.Config{
		BaseURL: opts.BaseURL,
		Log:     log,
	})

	// Rutas por módulo
	parcels.RegisterRoutes(r, parcelsSvc)
	qr.RegisterRoutes(r, qrSvc)
	deliverylog.RegisterRoutes(r, logsSvc)

	return r
}
