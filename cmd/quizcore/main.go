package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/opencampus/quizcore/internal/api/http"
	"github.com/opencampus/quizcore/internal/audit"
	"github.com/opencampus/quizcore/internal/auth"
	"github.com/opencampus/quizcore/internal/config"
	"github.com/opencampus/quizcore/internal/db"
	"github.com/opencampus/quizcore/internal/quiz"
	"github.com/opencampus/quizcore/internal/rbac"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	if err := auth.EnsureUser(context.Background(), dbh, "admin", cfg.AdminUser, cfg.AdminPassHash, "admin"); err != nil {
		log.Fatalf("seed admin user: %v", err)
	}

	store := quiz.NewSQLStore(dbh)
	svc := quiz.NewService(store, time.Now, audit.NewEventLog(dbh))
	sweeper := quiz.NewSweeper(svc, store, time.Now, cfg.SweepInterval)
	authSvc := auth.NewAuthService(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.PutQuizHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))
		pr.With(rbac.Require("quiz:results")).
			Get("/quizzes/{quizID}/results", api.QuizResultsHandler(store))
		pr.With(rbac.Require("quiz:publish-results")).
			Post("/quizzes/{quizID}/results/publish", api.PublishResultsHandler(store))

		// Student session flow
		pr.With(rbac.Require("session:start")).
			Post("/quizzes/{quizID}/session/start", api.StartSessionHandler(svc))
		pr.With(rbac.Require("session:save")).
			Post("/sessions/{submissionID}/autosave", api.AutoSaveHandler(svc, store))
		pr.With(rbac.Require("session:submit")).
			Post("/sessions/{submissionID}/submit", api.SubmitHandler(svc, store))
		pr.With(rbac.RequireAny("session:view-own", "session:view-all")).
			Get("/sessions/{submissionID}/status", api.SessionStatusHandler(svc, store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s (db=%s, sweep=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.SweepInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-rootCtx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
