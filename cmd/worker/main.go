package main

import (
	"context"
	"log"
	"time"

	"portal/internal/pkg/logger"
	"portal/internal/platform/config"
	"portal/internal/platform/database"
	"portal/internal/platform/gateway"
	"portal/internal/platform/repositories"
	"portal/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open metadata DB: %v", err)
	}
	defer db.Close()

	reconciler := workers.NewReconciler(
		gateway.NewClient(cfg.Gateway),
		repositories.NewAPIKeyRepository(db),
	)

	log.Printf("Starting portal workers (reconcile every %v)...", cfg.Worker.ReconcileInterval)

	ticker := time.NewTicker(cfg.Worker.ReconcileInterval)
	defer ticker.Stop()

	// One sweep at startup, then on the ticker.
	runSweep(reconciler)
	for range ticker.C {
		runSweep(reconciler)
	}
}

func runSweep(reconciler *workers.Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := reconciler.Run(ctx)
	if err != nil {
		log.Printf("Reconcile sweep aborted: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Reconcile sweep removed %d orphaned metadata rows", deleted)
	}
}
