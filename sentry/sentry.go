package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"linkedsongs/config"
)

// Init configures the global hub. An empty DSN leaves reporting disabled.
func Init(cfg config.SentryConfig) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Release:          cfg.Release,
		TracesSampleRate: 1.0,
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	if cfg.DSN == "" {
		log.Debug("SENTRY_DSN not set, error reporting disabled")
	}
}

func GetSentryGin() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// Flush waits for buffered events before the process exits.
func Flush() {
	sentry.Flush(2 * time.Second)
}
