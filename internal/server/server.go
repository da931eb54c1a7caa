// Package server wires the platform together and runs the HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillworks/quill/internal/ai"
	"github.com/quillworks/quill/internal/api"
	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/content"
	"github.com/quillworks/quill/internal/entitlement"
	"github.com/quillworks/quill/internal/intake"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/quota"
	"github.com/quillworks/quill/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Run starts the platform HTTP server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "quill",
	})

	log.Info().Str("version", version).Msg("Starting Quill platform server")

	db, err := store.OpenSQLite(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer db.Close()

	engine := entitlement.NewEngine(db)
	tracker := quota.NewTracker(db, cfg.AIMonthlyLimit)
	contentSvc := content.NewService(db)

	var assistant *ai.Assistant
	if cfg.OpenAIAPIKey != "" {
		provider := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		assistant = ai.NewAssistant(provider, tracker)
		log.Info().Str("model", cfg.OpenAIModel).Msg("AI assistance enabled")
		// Verify the key off the startup path; a bad key surfaces as a
		// warning, not a refusal to serve.
		go func() {
			if err := provider.TestConnection(ctx); err != nil {
				log.Warn().Err(err).Msg("AI provider connection check failed")
			}
		}()
	} else {
		log.Info().Msg("AI assistance disabled (set OPENAI_API_KEY to enable)")
	}

	dedup := intake.NewDeduper(intake.DefaultDedupWindow, intake.MaxTrackedEventIDs)

	deps := &api.Deps{
		Store:           db,
		Content:         contentSvc,
		Tracker:         tracker,
		Assistant:       assistant,
		Auth:            api.NewTokenAuthenticator(cfg.APITokens, db),
		StripeWebhook:   intake.NewStripeHandler(cfg.StripeWebhookSecret, engine, dedup),
		IdentityWebhook: intake.NewIdentityHandler(cfg.IdentityWebhookSecret, engine, dedup),
		Pinger:          db,
		Version:         version,
	}

	addr := cfg.ListenAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(deps),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Platform listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			log.Info().Msg("Context cancelled, shutting down...")
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Platform stopped")
	return nil
}
