package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/server"
	"github.com/qwennnzim-del/gen2-ai/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and/or Telegram bot",
	RunE:  runServe,
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "gen2.pid")
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := pidFilePath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	if !cfg.HTTP.Enabled && cfg.Telegram.Token == "" {
		return errors.New("nothing to serve: enable http.enabled or set telegram.token")
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	slog.Info("gen2 started",
		"data_dir", cfg.DataDir,
		"storage", cfg.Storage.Backend,
		"model", a.ctrl.Settings().Model,
		"http", cfg.HTTP.Enabled,
		"telegram_max_concurrent", cfg.Telegram.MaxConcurrent,
		"pid_file", pidPath,
	)

	if cfg.Telegram.Token != "" {
		model, err := newModelService(cfg)
		if err != nil {
			return err
		}
		adapter, err := telegram.New(cfg.Telegram.Token, a.kv, model, cfg.Telegram.MaxConcurrent)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		apiSrv := server.NewServer(a.ctrl)
		defer apiSrv.Close()
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           apiSrv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
				cancel()
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			shutdown(httpServer)
			return errors.New("server stopped unexpectedly")
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				shutdown(httpServer)
				a.close()
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					return fmt.Errorf("re-exec: %w", err)
				}
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			shutdown(httpServer)
			return nil
		}
	}
}

func shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
}
