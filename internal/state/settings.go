package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// SettingsKey is the KV key holding the serialized settings record.
const SettingsKey = "gen2_settings"

// SettingsStore holds the process-wide AppSettings and writes every change
// through to the KVStore.
type SettingsStore struct {
	kv       types.KVStore
	mu       sync.RWMutex
	settings types.AppSettings
}

func NewSettingsStore(kv types.KVStore) *SettingsStore {
	return &SettingsStore{kv: kv, settings: types.DefaultSettings()}
}

// Load reads the persisted settings. Each field is validated on its own and
// replaced by its default when absent or invalid.
func (s *SettingsStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = types.DefaultSettings()

	raw, ok, err := s.kv.Get(ctx, SettingsKey)
	if err != nil {
		slog.Warn("read settings failed, using defaults", "error", err)
		return
	}
	if !ok {
		return
	}

	// Decode fields loosely so one bad field does not discard the other.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		slog.Warn("discarding malformed settings", "error", err)
		return
	}

	var lang string
	if json.Unmarshal(fields["language"], &lang) == nil && types.Language(lang).Valid() {
		s.settings.Language = types.Language(lang)
	} else if _, present := fields["language"]; present {
		slog.Warn("invalid persisted language, using default", "value", string(fields["language"]))
	}

	var model string
	if json.Unmarshal(fields["model"], &model) == nil && types.ModelType(model).Valid() {
		s.settings.Model = types.ModelType(model)
	} else if _, present := fields["model"]; present {
		slog.Warn("invalid persisted model, using default", "value", string(fields["model"]))
	}
}

// Get returns the current settings.
func (s *SettingsStore) Get() types.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Put replaces the settings record and persists it immediately.
func (s *SettingsStore) Put(ctx context.Context, settings types.AppSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Set(ctx, SettingsKey, string(data)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
