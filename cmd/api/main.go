package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ankit/closepilot/internal/api"
	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/crm"
	"github.com/ankit/closepilot/internal/docgen"
	"github.com/ankit/closepilot/internal/esign"
	"github.com/ankit/closepilot/internal/history"
	"github.com/ankit/closepilot/internal/llm"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/registry"
	"github.com/ankit/closepilot/internal/service"
	"github.com/ankit/closepilot/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	defer logger.Sync()
	logger.SetDefaultLogger(appLogger)

	// Initialize CRM client and authenticate up front: a service that
	// cannot reach the CRM has nothing useful to do.
	crmClient := crm.NewClient(cfg.Salesforce)
	loginCtx, cancelLogin := context.WithTimeout(context.Background(), 30*time.Second)
	if err := crmClient.Login(loginCtx); err != nil {
		cancelLogin()
		appLogger.WithError(err).Fatal("Failed to authenticate with CRM")
	}
	cancelLogin()
	appLogger.Info("CRM authentication succeeded")

	// Initialize contract archive storage
	archive, err := storage.NewArchive(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize contract archive")
	}
	if s3Archive, ok := archive.(*storage.S3Archive); ok {
		if err := s3Archive.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
	}

	// Initialize collaborators
	jobRegistry := registry.New(appLogger)
	drafter := llm.NewDrafter(&cfg.LLM)
	if drafter.IsEnabled() {
		appLogger.WithField("model", cfg.LLM.Model).Info("LLM drafting enabled")
	} else {
		appLogger.Info("LLM drafting disabled: SOW drafting unavailable, chat uses keyword fallback")
	}
	esignClient := esign.NewClient(cfg.DocuSign)
	ledger := history.NewLedger(cfg.Ledger.Path)

	// Initialize services
	closingService := service.NewClosingService(
		jobRegistry,
		crmClient,
		drafter,
		esignClient,
		docgen.RenderSOW,
		ledger,
		archive,
		cfg.DocuSign,
		cfg.Closing,
		appLogger,
	)
	finalizeService := service.NewFinalizeService(crmClient, esignClient, archive, appLogger)

	// Setup router
	router := api.SetupRouter(api.Dependencies{
		Closing:    closingService,
		Registry:   jobRegistry,
		Finalize:   finalizeService,
		CRM:        crmClient,
		History:    ledger,
		Classifier: drafter,
		Logger:     appLogger,
	}, cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	// Let in-flight contract finalizations drain before exit
	finalizeService.Wait()

	appLogger.Info("Server exited")
}
