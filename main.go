package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"workflow-engine/api/pkg/config"
	"workflow-engine/api/pkg/db"
	"workflow-engine/api/pkg/logging"
	"workflow-engine/api/services/workflow"
)

type cli struct {
	v   *viper.Viper
	cfg *config.Config
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	c.cfg, err = config.Load(c.v, configFile)
	return err
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := logging.NewLogger(c.cfg.LogLevel, c.cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var permissions workflow.PermissionClient
	if c.cfg.PermissionURL != "" {
		permissions = workflow.NewHTTPPermissionClient(c.cfg.PermissionURL)
	}

	workflowService, err := workflow.NewService(store, workflow.NewRegistry(permissions), workflow.Config{
		AutoExecute:       c.cfg.AutoExecute,
		AutoExecuteDelay:  c.cfg.AutoExecuteDelay,
		PauseBlocksManual: c.cfg.PauseBlocksManual,
		SessionTTL:        c.cfg.SessionTTL,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	// setup router
	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	workflowService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(c.cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:              c.cfg.Addr(),
		Handler:           otelhttp.NewHandler(handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(os.Stderr, corsHandler)), "workflow-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			return err
		}

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
	return nil
}

// openStore picks the definition source: Postgres when a database URL is
// configured, an HCL directory when one is given, otherwise the built-in sample.
func openStore(ctx context.Context, cfg *config.Config) (workflow.DefinitionStore, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.Connect(ctx, db.Config{URI: cfg.DatabaseURL, MaxOpenConns: 10, ConnMaxLifetime: time.Hour})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return nil, nil, err
		}
		// Initialize database schema and seed data
		if err := workflow.InitDB(ctx, pool); err != nil {
			slog.Error("Failed to initialize database", "error", err)
			pool.Close()
			return nil, nil, err
		}
		slog.Info("Using postgres definition store")
		return workflow.NewRepository(pool), pool.Close, nil

	case cfg.DefinitionsDir != "":
		store, err := workflow.LoadDir(cfg.DefinitionsDir)
		if err != nil {
			slog.Error("Failed to load definitions", "dir", cfg.DefinitionsDir, "error", err)
			return nil, nil, err
		}
		slog.Info("Using HCL definition store", "dir", cfg.DefinitionsDir)
		return store, func() {}, nil

	default:
		slog.Info("Using in-memory sample definitions")
		return workflow.NewMemoryStore(workflow.SampleDefinition()), func() {}, nil
	}
}

func main() {
	c := &cli{v: viper.New()}

	cmd := &cobra.Command{
		Use:          "workflow-engine",
		Short:        "Serve interactive workflow sessions over HTTP",
		PreRunE:      c.setupConfig,
		RunE:         c.run,
		SilenceUsage: true,
	}

	if err := config.SetupFlags(cmd, c.v); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
