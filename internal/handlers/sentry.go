package handlers

import (
	"retro-backend/internal/config"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

// SetupSentry enables error reporting when SENTRY_DSN is set
func SetupSentry(e *echo.Echo, cfg *config.Config) {
	if cfg.Sentry.DSN == "" {
		e.Logger.Warn("SENTRY_DSN not configured, error reporting will be disabled")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		AttachStacktrace: true,
	})
	if err != nil {
		e.Logger.Warnf("Sentry initialization failed: %v, error reporting will be disabled", err)
		return
	}

	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
}

// CaptureError reports err to Sentry, a no-op when Sentry is not initialized
func CaptureError(err error) {
	if err == nil || sentry.CurrentHub().Client() == nil {
		return
	}
	sentry.CaptureException(err)
}
