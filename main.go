package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/imghost/internal/api"
	"github.com/notes-bin/imghost/internal/app"
	"github.com/notes-bin/imghost/internal/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "imghost",
	Short:        "Self-hosted image bed",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the --config file and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.SetupLogger(cfg)
	return cfg, nil
}

// newApp loads the config and connects the backends. The caller must defer a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		return err
	}
	defer a.Close()
	cfg := a.Config

	if !a.Sessions.Enabled() {
		slog.Warn("No jwt_secret configured, session bearer tokens are disabled")
	}

	// 过期清理在进程内定时执行
	if every, _ := cmd.Flags().GetDuration("sweep-every"); every > 0 {
		go a.Sweeper.Loop(ctx, every, false)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(a),
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting on port", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
		return err
	}
	slog.Info("Shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		return err
	}
	slog.Info("Server stopped")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "Path to the JSON or TOML config file")

	serveCmd.Flags().Duration("sweep-every", time.Hour, "Interval of the in-process expiry sweep (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
