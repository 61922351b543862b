// enkai is a LINE bot that coordinates a group's restaurant decision:
// it hears common wishes in the group thread, hears individual wishes in
// one-on-one threads, and announces a final venue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"enkai/internal/actions"
	"enkai/internal/backend"
	"enkai/internal/capability"
	"enkai/internal/config"
	"enkai/internal/coordinator"
	"enkai/internal/gateway"
	"enkai/internal/places"
	"enkai/internal/renderer"
	"enkai/internal/router"
	"enkai/internal/session"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "enkai",
	Short: "enkai - group venue decision assistant for LINE",
	Long: `enkai runs the webhook service behind a LINE bot that helps a group
decide on a restaurant: a shared hearing in the group thread, individual
hearings in one-on-one threads, and a final decision card.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	turnTimeout, _ := cfg.TurnTimeout()
	shutdownTimeout, _ := cfg.ShutdownTimeout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, turnTimeout)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildServer assembles the object graph. Capabilities must be registered
// before the first conversation starts; the backend reads the registry
// lazily, so construction order only has to finish before serving.
func buildServer(ctx context.Context, cfg *config.Config, turnTimeout time.Duration) (*http.Server, error) {
	registry := capability.NewRegistry(logger)

	be, err := backend.NewGemini(ctx, backend.GeminiConfig{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
	}, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	venueSearch, err := places.NewClient(places.Config{
		APIKey:     cfg.Places.APIKey,
		Language:   cfg.Places.Language,
		MaxResults: cfg.Places.MaxResults,
	}, be, logger)
	if err != nil {
		return nil, fmt.Errorf("places: %w", err)
	}

	line, err := renderer.NewLine(renderer.LineConfig{
		ChannelToken: cfg.LINE.ChannelToken,
		BaseURL:      cfg.LINE.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}

	store := session.NewStore(logger)
	bindings := router.NewBindings()

	if err := actions.Register(registry, actions.Deps{
		Store:    store,
		Bindings: bindings,
		Renderer: line,
		Places:   venueSearch,
		Logger:   logger,
	}); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}

	dispatcher := capability.NewDispatcher(registry, logger)
	coord := coordinator.New(store, dispatcher, be, coordinator.Config{
		GroupInstructions:      cfg.Prompts.Group,
		IndividualInstructions: cfg.Prompts.Individual,
		TurnTimeout:            turnTimeout,
	}, logger)

	rt := router.New(store, coord, dispatcher, bindings, router.Triggers{
		Start:    cfg.Triggers.Start,
		Decision: cfg.Triggers.Decision,
		Reset:    cfg.Triggers.Reset,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/webhook", gateway.NewHandler(rt, line, cfg.LINE.ChannelSecret, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "enkai.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
