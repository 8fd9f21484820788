package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stonescriptdb/gateway/internal/config"
	"github.com/stonescriptdb/gateway/internal/dbpool"
	"github.com/stonescriptdb/gateway/internal/gatewayapi"
	"github.com/stonescriptdb/gateway/internal/reconciler"
	"github.com/stonescriptdb/gateway/internal/registry"
	"github.com/stonescriptdb/gateway/internal/schema"
	"github.com/stonescriptdb/gateway/internal/version"
	"github.com/stonescriptdb/gateway/pkg/health"
	"github.com/stonescriptdb/gateway/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Multi-tenant PostgreSQL gateway",
	Long:  "Deploys, reconciles, and routes calls into per-tenant PostgreSQL databases from versioned schema bundles.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config overlay (defaults to $CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, migrateCheckCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gateway %s\n", version.Version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCheckCmd = &cobra.Command{
	Use:   "migrate-check",
	Short: "Verify database connectivity and platform registry integrity, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateCheck(cmd.Context())
	},
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		os.Setenv("CONFIG_FILE", configFile)
	}
	return config.FromEnv()
}

func runMigrateCheck(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New("gateway-migrate-check", version.Version)
	log.SetLevel(cfg.LogLevel)

	reg := registry.New(cfg.DataDir)
	pools, err := dbpool.New(ctx, cfg, reg, log)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pools.Close()

	if !pools.Ping(ctx) {
		return fmt.Errorf("admin pool failed to ping postgres")
	}

	platforms, err := reg.ListPlatforms()
	if err != nil {
		return fmt.Errorf("reading platform registry: %w", err)
	}

	log.Infof("postgres reachable, %d platform(s) registered", len(platforms))
	return nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New("gateway", version.Version)
	log.SetLevel(cfg.LogLevel)

	if hash, err := cfg.AdminTokenFingerprint(); err != nil {
		log.Warnf("could not fingerprint admin token: %v", err)
	} else if hash != "" {
		log.Infof("admin auth enabled, token fingerprint %s", hash)
	} else {
		log.Warn("admin auth disabled: no ADMIN_TOKEN configured")
	}

	reg := registry.New(cfg.DataDir)

	pools, err := dbpool.New(ctx, cfg, reg, log)
	if err != nil {
		return fmt.Errorf("initializing connection pool manager: %w", err)
	}
	defer pools.Close()

	rec := reconciler.New()
	checker := health.NewChecker()
	auditor := schema.NewAuditLogger(log)
	if err := auditor.EnsureAuditTable(ctx, pools.AdminPool()); err != nil {
		log.Warnf("could not provision admin audit table: %v", err)
	}

	srv := gatewayapi.New(pools, reg, rec, checker, log)
	mux := newMux(srv, cfg, pools, auditor, log)

	httpServer := &http.Server{
		Addr:              cfg.SocketAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.SocketAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	idleCleanupCtx, stopIdleCleanup := context.WithCancel(context.Background())
	defer stopIdleCleanup()
	go func() {
		ticker := time.NewTicker(cfg.PoolIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pools.CleanupIdlePools()
			case <-idleCleanupCtx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
		log.Info("received shutdown signal")
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("graceful shutdown timed out: %v", err)
		return httpServer.Close()
	}

	log.Info("gateway stopped gracefully")
	return nil
}
