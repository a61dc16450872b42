// Package main provides the medication API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/api/handlers"
	"github.com/medipal/medtrack/internal/api/middleware"
	"github.com/medipal/medtrack/internal/config"
	"github.com/medipal/medtrack/internal/domain/adherence"
	"github.com/medipal/medtrack/internal/domain/drug"
	"github.com/medipal/medtrack/internal/domain/intake"
	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/domain/request"
	"github.com/medipal/medtrack/internal/domain/user"
	"github.com/medipal/medtrack/internal/observability/metrics"
	"github.com/medipal/medtrack/internal/observability/tracing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	// Initialize tracing
	tracingCfg := tracing.DefaultConfig("medication-api")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(context.Background(), tracingCfg)
	if err != nil {
		logger.Warn("tracing init failed, continuing without", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Initialize metrics
	m := metrics.New()

	// Initialize repositories
	medRepo := medication.NewRepository(pool, logger)
	reqRepo := request.NewRepository(pool, medRepo, logger)
	intakeRepo := intake.NewRepository(pool, logger)
	adherenceRepo := adherence.NewRepository(pool, medRepo, intakeRepo, logger)
	drugRepo := drug.NewRepository(pool, logger)
	userRepo := user.NewRepository(pool, logger)

	// Initialize handlers
	medHandler := handlers.NewMedicationHandler(medRepo, m, logger)
	reqHandler := handlers.NewRequestHandler(reqRepo, medRepo, m, logger)
	intakeHandler := handlers.NewIntakeHandler(intakeRepo, m, logger)
	adherenceHandler := handlers.NewAdherenceHandler(adherenceRepo, logger)
	drugHandler := handlers.NewDrugHandler(drugRepo, logger)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("medication-api"))

	// Health check (no auth)
	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	// API routes (with auth and actor identification)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.ParseAPIKeys()))
		r.Use(middleware.Actor)

		r.Mount("/medications", medHandler.Routes())
		r.Mount("/intake", intakeHandler.Routes())
		r.Mount("/adherence", adherenceHandler.Routes())
		r.Mount("/drugs", drugHandler.Routes())

		// Request workflow: clinicians propose, patients respond.
		r.Route("/requests", func(r chi.Router) {
			clinicianOnly := middleware.RequireRole(userRepo.GetRole, user.RoleClinician)
			patientOnly := middleware.RequireRole(userRepo.GetRole, user.RolePatient)

			r.With(clinicianOnly).Post("/", reqHandler.Create)
			r.With(clinicianOnly).Get("/", reqHandler.ListForClinician)
			r.With(patientOnly).Get("/pending", reqHandler.ListPending)
			r.Get("/{id}", reqHandler.Get)
			r.Get("/{id}/diff", reqHandler.Diff)
			r.With(patientOnly).Post("/{id}/respond", reqHandler.Respond)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting medication API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"medication-api","version":"1.0.0"}`)
}
