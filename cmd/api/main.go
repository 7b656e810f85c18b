package main

import (
	"net/http"
	"os"
	"time"

	"condotrack/internal/adapters/auth/condoauth"
	"condotrack/internal/adapters/notify/webhook"
	"condotrack/internal/platform/logger"
	"condotrack/internal/ports/auth"
	"condotrack/internal/ports/notify"
	"condotrack/internal/router"
)

func main() {
	log := logger.NewFromEnv()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	// Verifier contra el servicio de identidad; sin AUTH_BASE_URL queda
	// en modo dev (headers X-Debug-*).
	var verifier auth.AuthVerifier
	if base := os.Getenv("AUTH_BASE_URL"); base != "" {
		client, err := condoauth.NewClient(condoauth.Config{
			BaseURL: base,
			APIKey:  os.Getenv("AUTH_API_KEY"),
		})
		if err != nil {
			log.Error("condoauth client init failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		verifier = condoauth.NewVerifier(client)
	} else {
		log.Warn("AUTH_BASE_URL not set, running in dev auth mode", nil)
	}

	var notifier notify.Sender
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		sender, err := webhook.New(url, 10*time.Second)
		if err != nil {
			log.Error("webhook sender init failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		notifier = sender
	}

	r := router.NewRouter(router.Options{
		AuthVerifier: verifier,
		BaseURL:      os.Getenv("APP_BASE_URL"),
		Notifier:     notifier,
		Log:          log,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("starting server", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
