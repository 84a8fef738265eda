package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"retro-backend/internal/common"
	"retro-backend/internal/config"
	"retro-backend/internal/handlers"
	"retro-backend/internal/query"
	"retro-backend/internal/store"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	// Capture in Sentry
	if err, ok := i[0].(error); ok {
		handlers.CaptureError(err)
	} else {
		handlers.CaptureError(errors.New(fmt.Sprint(i...)))
	}
	// Call original logger
	l.Logger.Error(i...)
}

func (l *SentryLogger) Errorf(format string, args ...interface{}) {
	handlers.CaptureError(fmt.Errorf(format, args...))
	l.Logger.Errorf(format, args...)
}

type Server struct {
	common.ServerState
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	e.IPExtractor = handlers.NewIPExtractor(cfg.Server.TrustProxy)
	e.Logger = &SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)

	return &Server{
		common.ServerState{
			Echo:   e,
			Config: cfg,
		},
	}
}

func (s *Server) Initialize() error {
	schema, err := s.Config.Schema()
	if err != nil {
		return fmt.Errorf("building survey schema: %w", err)
	}
	s.Schema = schema

	// Initialize storage
	if err := s.setupStore(); err != nil {
		return err
	}

	s.setupRedis()

	// Initialize JWT
	s.setupAuth()

	s.Query = query.NewService(s.Store, s.Schema)

	// Setup routes
	s.setupRoutes()

	s.setupMetrics()

	// Setup middleware -
	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupStore() error {
	switch s.Config.Database.Backend {
	case config.BackendFirestore:
		fs, err := store.OpenFirestore(context.Background(), s.Config.Firestore.ProjectID, s.Config.Firestore.CredentialsFile, s.Schema)
		if err != nil {
			return err
		}
		s.Echo.Logger.Infof("Using Firestore project %s", s.Config.Firestore.ProjectID)
		s.Store = fs
		return nil
	default:
		gs, err := store.OpenGorm(s.Config.Database.DSN, s.Schema)
		if err != nil {
			return err
		}
		// Run Migrations
		if err := gs.Migrate(context.Background()); err != nil {
			return err
		}
		s.Store = gs
		return nil
	}
}

func (s *Server) setupRedis() {
	url := s.Config.Database.RedisURI

	// Make Redis optional - if URI is empty, skip Redis setup
	if url == "" {
		s.Echo.Logger.Warn("REDIS_URI not configured, submission rate limits will be kept in memory")
		s.Redis = nil
		return
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		s.Echo.Logger.Warnf("Failed to parse Redis URL: %v, submission rate limits will be kept in memory", err)
		s.Redis = nil
		return
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection, but don't panic on failure
	ctx := context.Background()
	result := s.Redis.Ping(ctx)
	if result.Err() != nil {
		s.Echo.Logger.Warnf("Redis connection failed: %v, submission rate limits will be kept in memory", result.Err())
		s.Redis = nil
		return
	}
}

func (s *Server) setupAuth() {
	secret := s.Config.Auth.JWTSecret
	if secret == "" {
		// Tokens will not survive a restart, which is acceptable for local runs
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			s.Echo.Logger.Fatal(err)
		}
		secret = hex.EncodeToString(buf)
		s.Echo.Logger.Warn("JWT_SECRET not configured, using a random secret for this process")
	}
	if s.Config.Auth.AdminPasswordHash == "" {
		s.Echo.Logger.Warn("ADMIN_PASSWORD_HASH not configured, admin sign-in will be disabled")
	}
	s.JwtIssuer = handlers.NewJwtAuth(secret)
}

func (s *Server) setupMiddleware() {
	if len(s.Config.Server.AllowOrigins) > 0 {
		s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: s.Config.Server.AllowOrigins}))
	} else {
		s.Echo.Use(middleware.CORS())
	}
	s.Echo.Use(middleware.Recover())
	// Try to add prometheus middleware, but don't panic if already registered (e.g., in tests)
	// This allows multiple test runs without panicking
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err.Error() == "duplicate metrics collector registration attempted" {
				s.Echo.Logger.Warn("Prometheus middleware already registered, skipping")
			} else {
				panic(r)
			}
		}
	}()
	s.Echo.Use(echoprometheus.NewMiddleware("retro_backend"))
}

func (s *Server) setupMetrics() {
	// Only register Redis metrics if Redis is available
	if s.Redis == nil {
		return
	}

	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			ctx := context.Background()
			connectedClientsRaw := s.Redis.InfoMap(ctx).Item("Clients", "connected_clients")

			connectedClients, err := strconv.ParseFloat(connectedClientsRaw, 64)
			if err != nil {
				return math.NaN()
			}

			return connectedClients
		},
	))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		s.Echo.Logger.Warnf("Failed to register Redis metrics: %v", err)
	}
}

func (s *Server) setupRoutes() {
	handlers.SetupSentry(s.Echo, s.Config)

	feedback := handlers.NewFeedbackHandler(&s.ServerState)
	admin := handlers.NewAdminHandler(&s.ServerState)

	// API routes group
	api := s.Echo.Group("/api")

	// Public API endpoints
	api.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	api.GET("/metrics", echoprometheus.NewHandler())

	api.GET("/survey", feedback.Survey)
	api.POST("/feedback", feedback.SubmitFeedback)

	api.POST("/admin/sign-in", admin.SignIn)

	// Protected API routes group
	protectedAPI := api.Group("/admin", s.JwtIssuer.Middleware())

	protectedAPI.GET("/feedback", admin.ListFeedback)
	protectedAPI.GET("/feedback/export", admin.ExportFeedback)
	protectedAPI.GET("/feedback/tally", admin.TallyFeedback)
	protectedAPI.GET("/feedback/summary", admin.SummaryFeedback)

	s.Echo.GET("/*", func(c echo.Context) error {
		if strings.HasPrefix(c.Request().URL.Path, "/api") {
			return echo.NewHTTPError(404, "API endpoint not found")
		}
		return echo.NewHTTPError(404, "Not found")
	})
}

// Close releases the store and Redis handles
func (s *Server) Close() error {
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port

	if s.Config.Server.TLS.Enabled {
		if _, err := os.Stat(s.Config.Server.TLS.CertFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS certificate file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		if _, err := os.Stat(s.Config.Server.TLS.KeyFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS key file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		return s.Echo.StartTLS(serverURL, s.Config.Server.TLS.CertFile, s.Config.Server.TLS.KeyFile)
	}

	return s.Echo.Start(serverURL)
}
