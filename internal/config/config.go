package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type LLMConfig struct {
	BaseURL          string  `json:"base_url" toml:"base_url" env:"GEN2_BASE_URL"`
	APIKey           string  `json:"api_key" toml:"api_key" env:"GEMINI_API_KEY"`
	MaxTokens        int     `json:"max_tokens" toml:"max_tokens"`
	Temperature      float32 `json:"temperature" toml:"temperature"`
	TopP             float32 `json:"top_p" toml:"top_p"`
	MaxContextTokens int     `json:"max_context_tokens" toml:"max_context_tokens"`
	OutputReserve    int     `json:"output_reserve" toml:"output_reserve"`
}

type StorageConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `json:"backend" toml:"backend" env:"GEN2_STORAGE"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Listen  string `json:"listen" toml:"listen" env:"GEN2_HTTP_LISTEN"`
}

type TelegramConfig struct {
	Token string `json:"token" toml:"token" env:"TELEGRAM_BOT_TOKEN"`

	// MaxConcurrent bounds chats waiting on the model at the same time.
	MaxConcurrent int `json:"max_concurrent" toml:"max_concurrent"`
}

type Config struct {
	DataDir  string         `json:"data_dir" toml:"data_dir" env:"GEN2_DATA_DIR"`
	LogLevel string         `json:"log_level" toml:"log_level" env:"GEN2_LOG_LEVEL"`
	LLM      LLMConfig      `json:"llm" toml:"llm"`
	Storage  StorageConfig  `json:"storage" toml:"storage"`
	HTTP     HTTPConfig     `json:"http" toml:"http"`
	Telegram TelegramConfig `json:"telegram" toml:"telegram"`
}

// DefaultPath is where the CLI looks for its config file.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".gen2", "config.json")
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".gen2"),
		LogLevel: "info",
	}
	cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	cfg.LLM.MaxTokens = 8192
	cfg.LLM.Temperature = 0.7
	cfg.LLM.TopP = 0.95
	cfg.LLM.MaxContextTokens = 1000000
	cfg.LLM.OutputReserve = 8192
	cfg.Storage.Backend = "file"
	cfg.HTTP.Listen = "127.0.0.1:8420"
	cfg.Telegram.MaxConcurrent = 4
	return cfg
}

// isTOML reports whether path should be read and written as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func Load(path string) (*Config, error) {
	cfg, err := fromFile(path)
	if err != nil {
		return nil, err
	}

	// Override from env (highest precedence)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fromFile reads path over the defaults, writing the defaults when the
// file does not exist yet. Environment overrides are not applied.
func fromFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, v any) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), v)
		return err
	}
	return json.Unmarshal(data, v)
}

func encode(path string, v any) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	return writeFile(path, cfg)
}

func writeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := encode(path, v)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns every config value under its dotted key,
// optionally with secrets masked.
func ListValues(cfg *Config, masked bool) map[string]any {
	values := Values(cfg)
	if masked {
		values = MaskSecrets(values)
	}
	return values
}

// GetValue returns the value stored in the config file under key.
func GetValue(path, key string) (any, error) {
	cfg, err := fromFile(path)
	if err != nil {
		return nil, err
	}
	f, err := lookup(cfg, key)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

// SetValue parses value as the type of key, checks it and writes the
// config file. The file must already exist; environment overrides are
// never written back.
func SetValue(path, key, value string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	cfg, err := fromFile(path)
	if err != nil {
		return err
	}
	if err := Assign(cfg, key, value); err != nil {
		return err
	}
	return Save(path, cfg)
}
