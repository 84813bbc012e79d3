package main

import (
	"fmt"
	"log"
	"net/http"

	"portal/internal/api"
	"portal/internal/api/handlers"
	"portal/internal/api/middleware"
	"portal/internal/engine/enrichment"
	"portal/internal/engine/keys"
	"portal/internal/pkg/logger"
	"portal/internal/platform/audit"
	"portal/internal/platform/auth"
	"portal/internal/platform/config"
	"portal/internal/platform/database"
	"portal/internal/platform/gateway"
	"portal/internal/platform/repositories"
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

	// Clients
	gatewayClient := gateway.NewClient(cfg.Gateway)
	enrichmentClient := enrichment.NewClient(cfg.Enrichment)

	// Repositories
	keyRepo := repositories.NewAPIKeyRepository(db)
	auditLogger := audit.NewLogger(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	keyService := keys.NewService(gatewayClient, keyRepo, auditLogger, cfg.Gateway.KeyPrefixLength)

	// Handlers
	apiKeyHandler := handlers.NewAPIKeyHandler(keyService)
	enrichmentHandler := handlers.NewEnrichmentHandler(enrichmentClient)
	healthHandler := handlers.NewHealthHandler(db, gatewayClient)
	metricsHandler := handlers.NewMetricsHandler()

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)

	// Router
	deps := &api.Dependencies{
		APIKeyHandler:     apiKeyHandler,
		EnrichmentHandler: enrichmentHandler,
		HealthHandler:     healthHandler,
		MetricsHandler:    metricsHandler,
		AuthMiddleware:    authMiddleware,
	}
	router := api.NewRouter(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		// WriteTimeout must outlive SSE sessions; 0 disables it and the
		// stream handler relies on client disconnect instead.
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
