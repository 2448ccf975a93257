package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"atomsense/internal/config"
	"atomsense/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := server.Bootstrap(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if err := server.Run(ctx, appContainer); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
