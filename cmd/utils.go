package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryocare-backend/internal/api"
	"cryocare-backend/internal/core"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	if err := godotenv.Load(configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func NewRouter(service *api.BackendService, allowCors bool) chi.Router {
	r := chi.NewRouter()

	if allowCors {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return r
}

// RequeueRuns publishes every run still QUEUED in the database. Used when the
// queue does not survive restarts.
func RequeueRuns(ctx context.Context, db *gorm.DB, publisher messaging.Publisher) error {
	var runs []database.Run
	if err := db.WithContext(ctx).Where("status = ?", database.JobQueued).Order("creation_time").Find(&runs).Error; err != nil {
		return fmt.Errorf("error fetching queued runs: %w", err)
	}

	for _, run := range runs {
		if _, err := core.ParseProtocol(run.Protocol); err != nil {
			slog.Warn("skipping queued run with unknown protocol", "run_id", run.Id, "protocol", run.Protocol)
			continue
		}
		queue, err := messaging.QueueFor(run.Protocol)
		if err != nil {
			return err
		}
		if err := publisher.PublishRunTask(ctx, queue, messaging.RunTaskPayload{RunId: run.Id}); err != nil {
			return fmt.Errorf("error requeueing run %s: %w", run.Id, err)
		}
	}

	if len(runs) > 0 {
		slog.Info("requeued runs", "count", len(runs))
	}
	return nil
}

func ListenAndServe(server *http.Server) {
	slog.Info("server started", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", server.Addr, err)
	}
	slog.Info("server stopped")
}

// WaitForSignal blocks until SIGINT or SIGTERM.
func WaitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func Shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
}
