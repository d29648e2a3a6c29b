package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"cryocare-backend/cmd"
	"cryocare-backend/internal/api"
	"cryocare-backend/internal/core"
	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"
	"cryocare-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	Root        string `env:"ROOT" envDefault:"./cryocare-data"`
	Port        int    `env:"PORT" envDefault:"3001"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"1"`
	Cryocare    cryocare.EnvConfig
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "cryocare.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	queue := messaging.NewInMemoryQueue()

	if err := cmd.RequeueRuns(context.Background(), db, queue); err != nil {
		log.Fatalf("Failed to publish queued runs: %v", err)
	}

	return queue
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		log.Fatalf("Invalid root directory '%s': %v", cfg.Root, err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	cryoEnv, err := cryocare.NewEnvironment(cfg.Cryocare)
	if err != nil {
		log.Fatalf("Invalid cryoCARE environment: %v", err)
	}

	slog.Info("starting backend", "root", root, "port", cfg.Port, "cryocare_version", cryoEnv.Recipe().Version, "env", cryoEnv.Recipe().EnvName())

	db := createDatabase(root)

	store, err := storage.NewLocalObjectStore(filepath.Join(root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	queue := createQueue(db)

	worker := core.NewTaskProcessor(db, store, queue, queue, cryoEnv, root, core.ModelBucket)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: cmd.NewRouter(api.NewBackendService(db, queue, cryoEnv), true),
	}

	slog.Info("starting worker", "concurrency", cfg.Concurrency)
	done := make(chan struct{})
	go func() {
		worker.Start(cfg.Concurrency)
		close(done)
	}()

	go func() {
		cmd.WaitForSignal()
		slog.Info("shutting down server")
		cmd.Shutdown(server)

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	cmd.ListenAndServe(server)
	<-done
}
