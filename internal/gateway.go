package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/discovery"
	"github.com/SrujanaJ313/claimant-gateway/internal/flow"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/server"
	"github.com/SrujanaJ313/claimant-gateway/internal/session"
	"github.com/SrujanaJ313/claimant-gateway/internal/storage"
)

// Gateway is the complete claimant authentication gateway application.
type Gateway struct {
	config     config.Config
	httpServer *server.HTTPServer
	sessions   *session.Manager
	store      storage.Store
	cleanup    *storage.CleanupManager
}

// NewGateway builds the application with all dependencies wired.
func NewGateway(ctx context.Context, cfg config.Config) (*Gateway, error) {
	log.LogInfoWithFields("gateway", "Building claimant gateway", map[string]any{
		"baseURL":  cfg.Gateway.BaseURL,
		"provider": string(cfg.Provider.Kind),
	})

	// One key seals both the session cookie and, under Firestore, the
	// persisted token documents.
	encryptor, err := crypto.NewEncryptor([]byte(cfg.Gateway.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	store, err := setupStorage(ctx, cfg, encryptor)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	resolver := discovery.NewResolver(cfg.Provider)
	ctrl := flow.NewController(cfg.Provider, resolver, store)
	sessions := session.NewManager(ctrl, store)

	handler, err := server.NewRouter(&cfg, ctrl, sessions, encryptor)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	httpServer := server.NewHTTPServer(handler, cfg.Gateway.Addr)

	sweepers := []storage.AttemptSweeper{ctrl}
	if sweeper, ok := store.(storage.AttemptSweeper); ok {
		sweepers = append(sweepers, sweeper)
	}

	return &Gateway{
		config:     cfg,
		httpServer: httpServer,
		sessions:   sessions,
		store:      store,
		cleanup:    storage.NewCleanupManager(15*time.Minute, sweepers...),
	}, nil
}

// Run starts the gateway and blocks until a shutdown signal or a fatal
// server error, then shuts everything down gracefully.
func (g *Gateway) Run() error {
	log.LogInfoWithFields("gateway", "Starting claimant gateway", map[string]any{
		"addr": g.config.Gateway.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := g.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Browsers that never return from the redirect leave login state behind
	// in both the store and the flow controller; sweep it periodically.
	g.cleanup.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("gateway", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("gateway", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("gateway", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("gateway", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := g.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("gateway", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	g.sessions.Dispose()
	g.cleanup.Stop()

	if err := g.store.Close(); err != nil {
		log.LogWarnWithFields("gateway", "Storage close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("gateway", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the token store based on configuration.
func setupStorage(ctx context.Context, cfg config.Config, encryptor crypto.Encryptor) (storage.Store, error) {
	if cfg.Storage.Kind == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.GCPProject,
			"database":   cfg.Storage.Database,
			"collection": cfg.Storage.Collection,
		})
		store, err := storage.NewFirestoreStore(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.Database,
			cfg.Storage.Collection,
			encryptor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return store, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStore(), nil
}
