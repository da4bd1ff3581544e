package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/config"
	ctxengine "github.com/qwennnzim-del/gen2-ai/internal/context"
	"github.com/qwennnzim-del/gen2-ai/internal/conversation"
	"github.com/qwennnzim-del/gen2-ai/internal/runtime"
	"github.com/qwennnzim-del/gen2-ai/internal/state"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
	"github.com/qwennnzim-del/gen2-ai/pkg/llm"
	"github.com/qwennnzim-del/gen2-ai/pkg/llm/openai"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "gen2",
	Short:         "Gen2 AI chat assistant by Zent Technology",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path (.json or .toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits; every subcommand needs it.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openStore opens the configured key-value backend. The returned func
// releases it.
func openStore(cfg *config.Config) (types.KVStore, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.Storage.Backend {
	case "", "file":
		return state.NewFileKV(filepath.Join(cfg.DataDir, "store")), func() {}, nil
	case "sqlite":
		kv, err := state.OpenSQLiteKV(filepath.Join(cfg.DataDir, "gen2.db"))
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				slog.Warn("close sqlite store", "error", err)
			}
		}, nil
	case "memory":
		return state.NewMemoryKV(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q (want file, sqlite or memory)", cfg.Storage.Backend)
	}
}

// newModelService wires the LLM client, prompt engine and runtime.
func newModelService(cfg *config.Config) (*runtime.Runtime, error) {
	if cfg.LLM.APIKey == "" {
		slog.Warn("no API key configured; set GEMINI_API_KEY or run gen2 setup")
	}
	provider := openai.New(&llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
	})
	engine, err := ctxengine.New(string(types.DefaultModel), cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return nil, fmt.Errorf("create context engine: %w", err)
	}
	return runtime.New(provider, engine, runtime.Options{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
	}), nil
}

// newController loads stored sessions and settings from kv.
func newController(ctx context.Context, kv types.KVStore, model types.ModelService) *conversation.Controller {
	sessions := state.NewSessionStore(kv)
	sessions.Load(ctx)
	settings := state.NewSettingsStore(kv)
	settings.Load(ctx)
	return conversation.New(sessions, settings, model)
}

// app bundles what the interactive commands need.
type app struct {
	cfg   *config.Config
	kv    types.KVStore
	ctrl  *conversation.Controller
	close func()
}

func openApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	setupLogging(cfg)

	kv, closeKV, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	model, err := newModelService(cfg)
	if err != nil {
		closeKV()
		return nil, err
	}
	return &app{
		cfg:   cfg,
		kv:    kv,
		ctrl:  newController(ctx, kv, model),
		close: closeKV,
	}, nil
}

// resolveSession accepts a full session ID, a unique ID prefix, or a
// 1-based index into the session list.
func resolveSession(sessions []types.ChatSession, ref string) (types.SessionID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("session reference required")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no session #%d (have %d)", n, len(sessions))
		}
		return sessions[n-1].ID, nil
	}
	var match types.SessionID
	for _, s := range sessions {
		if string(s.ID) == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(string(s.ID), ref) {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", conversation.ErrSessionNotFound, ref)
	}
	return match, nil
}
