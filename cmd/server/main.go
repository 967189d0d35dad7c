package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/LeadWire-CRM/automation_layer/internal/app/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("automation-layer: %v", err)
	}
}

func run(ctx context.Context) error {
	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	application, err := runtime.NewApplication()
	if err != nil {
		return err
	}

	if err := application.Run(ctx); err != nil {
		return err
	}

	return application.Shutdown(context.Background())
}
