package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/byteos/intelligence/internal/config"
	"github.com/byteos/intelligence/internal/database"
	"github.com/byteos/intelligence/internal/learner"
	"github.com/byteos/intelligence/internal/llm"
	"github.com/byteos/intelligence/internal/lock"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/middleware"
	"github.com/byteos/intelligence/internal/models"
	"github.com/byteos/intelligence/internal/recommend"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	// Learner store
	var store learner.Store
	if cfg.Database.InMemory {
		logr.Warn("using in-memory learner store, profiles will not survive a restart")
		store = learner.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to database", "error", err)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				logr.Fatal("failed to run migrations", "error", err)
			}
		}
		store = learner.NewPostgresStore(db)
	}

	// Redis: distributed lock and next-action cache
	var (
		locker lock.Locker     = lock.NewLocal()
		cache  recommend.Cache = recommend.NopCache{}
	)
	rdb, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
		locker = lock.NewRedis(rdb, logr, cfg.Redis.LockTTL)
		cache = recommend.NewRedisCache(rdb, cfg.Redis.CacheTTL)
		logr.Info("redis enabled", "addr", cfg.Redis.Addr)
	}

	// Services
	learners := learner.NewService(store, locker, learner.ServiceConfig{
		Policy: learner.Policy{
			HalfLife: cfg.Engine.HalfLife,
			Gaps:     learner.DefaultGapPolicy(cfg.Engine.SkillGapWindow),
		},
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
		StoreTimeout:       cfg.Engine.StoreTimeout,
	}, logr)

	chain := llm.FromConfig(cfg.LLM, logr)

	recs := recommend.NewService(learners, cache, recommend.NewNarrator(chain, cfg.LLM.MaxTokens, logr), recommend.Config{
		Thresholds: recommend.Thresholds{
			SeverityThreshold: cfg.Engine.SeverityThreshold,
			LowEngagement:     cfg.Engine.LowEngagement,
			ModalityGapMin:    cfg.Engine.ModalityGapMin,
			ConfidenceCap:     cfg.Engine.ConfidenceCap,
		},
		ModalityMargin: cfg.Engine.ModalityMargin,
	}, logr)
	learners.OnCommit(recs.Invalidate)

	// Initialize handlers
	learnerHandler := learner.NewHandler(learners, logr)
	recommendHandler := recommend.NewHandler(recs, logr)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logr))

	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.HealthResponse{Status: "ok", Service: "byteos-intelligence", Version: version})
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	if cfg.Auth.JWTSecret != "" {
		api.Use(middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Middleware)
	} else {
		logr.Warn("auth.jwt_secret is empty, learner endpoints are unauthenticated")
	}
	api.HandleFunc("/learner/profile", learnerHandler.UpdateProfile).Methods("POST")
	api.HandleFunc("/learner/next-action", recommendHandler.NextAction).Methods("POST")
	api.HandleFunc("/modality/recommend", recommendHandler.RecommendModality).Methods("POST")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logr.Info("server starting", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", "error", err)
	}
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
