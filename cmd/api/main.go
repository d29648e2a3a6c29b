package main

import (
	"log"
	"net/http"

	"cryocare-backend/cmd"
	"cryocare-backend/internal/api"
	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	APIPort     string `env:"API_PORT" envDefault:"8001"`
	AllowCors   bool   `env:"ALLOW_CORS" envDefault:"false"`
	Cryocare    cryocare.EnvConfig
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	cryoEnv, err := cryocare.NewEnvironment(cfg.Cryocare)
	if err != nil {
		log.Fatalf("Invalid cryoCARE environment: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	service := api.NewBackendService(db, publisher, cryoEnv)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: cmd.NewRouter(service, cfg.AllowCors),
	}

	go func() {
		cmd.WaitForSignal()
		log.Println("Shutting down server...")
		cmd.Shutdown(server)
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	cmd.ListenAndServe(server)
}
