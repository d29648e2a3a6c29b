package main

import (
	"context"
	"log"
	"path/filepath"

	"cryocare-backend/cmd"
	"cryocare-backend/internal/core"
	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"
	"cryocare-backend/internal/storage"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	ModelBucketName   string `env:"MODEL_BUCKET_NAME" envDefault:"models"`
	Root              string `env:"ROOT" envDefault:"./cryocare-data"`
	WorkerConcurrency int    `env:"CONCURRENCY" envDefault:"1"`
	Cryocare          cryocare.EnvConfig
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		log.Fatalf("Invalid root directory '%s': %v", cfg.Root, err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	cryoEnv, err := cryocare.NewEnvironment(cfg.Cryocare)
	if err != nil {
		log.Fatalf("Invalid cryoCARE environment: %v", err)
	}

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        cfg.S3EndpointURL,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Worker: Failed to create S3 client: %v", err)
	}

	if err := store.CreateBucket(context.Background(), cfg.ModelBucketName); err != nil {
		log.Fatalf("Worker: Failed to create model bucket: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	worker := core.NewTaskProcessor(db, store, publisher, reciever, cryoEnv, root, cfg.ModelBucketName)

	done := make(chan struct{})
	go func() {
		worker.Start(cfg.WorkerConcurrency)
		close(done)
	}()

	log.Printf("Worker started with %d threads, cryoCARE %s. Waiting for tasks. Press Ctrl+C to exit.", cfg.WorkerConcurrency, cryoEnv.Recipe().Version)

	cmd.WaitForSignal()

	log.Println("Shutdown signal received, waiting for running tasks to finish...")
	worker.Stop()
	<-done

	log.Println("Worker process stopped.")
}
