package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/reverside/timetracker/config"
	"github.com/reverside/timetracker/internal/db"
	"github.com/reverside/timetracker/internal/handlers"
	"github.com/reverside/timetracker/internal/mq"
	"github.com/reverside/timetracker/internal/password"
	"github.com/reverside/timetracker/internal/services"
	"github.com/reverside/timetracker/internal/storage"
	"github.com/reverside/timetracker/internal/store"
)

const reportPrefix = "reports"

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	bus        *mq.MQ
	logger     *slog.Logger
}

// New connects the database, the optional broker and object storage, and
// mounts every route.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := store.New(dbConn)

	timesheetOpts := []services.TimesheetOption{services.WithLogger(logger)}
	bus, err := mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		logger.Info("event publishing disabled")
	case err != nil:
		_ = st.Close()
		return nil, err
	default:
		timesheetOpts = append(timesheetOpts, services.WithPublisher(mq.NewEventPublisher(bus, cfg.MQ.Channel)))
	}

	// A nil *storage.Storage must not reach the service as a non-nil interface.
	var reportStorage services.ReportStorage
	objects, err := storage.New(ctx, cfg.Storage, reportPrefix)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.Info("report exports disabled")
	case err != nil:
		_ = st.Close()
		if bus != nil {
			_ = bus.Close()
		}
		return nil, err
	default:
		reportStorage = objects
	}

	userRepo := store.NewUserRepository(st)
	timesheetRepo := store.NewTimesheetRepository(st)
	entryRepo := store.NewTimeEntryRepository(st)

	userService := services.NewUserService(userRepo, password.NewBcrypt(cfg.Auth.BcryptCost))
	timesheetService := services.NewTimesheetService(timesheetRepo, entryRepo, st, timesheetOpts...)
	reportService := services.NewReportService(timesheetRepo, reportStorage, logger)

	authHandler := handlers.NewAuthHandler(userService, jwtSecret, cfg.Auth.TokenTTL)
	timesheetHandler := handlers.NewTimesheetHandler(timesheetService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(st))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/timesheets", func(r chi.Router) {
		handlers.TimesheetRouter(r, timesheetHandler, authHandler.RequireAuth)
	})
	router.Route("/stats", func(r chi.Router) {
		handlers.StatsRouter(r, timesheetHandler, authHandler.RequireAuth)
	})
	router.Route("/employees", func(r chi.Router) {
		handlers.EmployeeRouter(r, handlers.NewEmployeeHandler(userService), authHandler.RequireAuth)
	})
	router.Route("/reports", func(r chi.Router) {
		handlers.ReportRouter(r, handlers.NewReportHandler(reportService), authHandler.RequireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		store:      st,
		bus:        bus,
		logger:     logger,
	}, nil
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	return err
}
