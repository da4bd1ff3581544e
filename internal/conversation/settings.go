package conversation

import (
	"context"
	"fmt"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// Settings returns the current application settings.
func (c *Controller) Settings() types.AppSettings {
	return c.settings.Get()
}

// SetModel switches the model used for subsequent sends and persists it.
func (c *Controller) SetModel(ctx context.Context, m types.ModelType) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidModel, m)
	}
	return c.updateSettings(ctx, func(s *types.AppSettings) { s.Model = m })
}

// SetLanguage switches the interface and reply language and persists it.
func (c *Controller) SetLanguage(ctx context.Context, l types.Language) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, l)
	}
	return c.updateSettings(ctx, func(s *types.AppSettings) { s.Language = l })
}

// updateSettings applies the change in memory even when the write fails,
// then reports the write error.
func (c *Controller) updateSettings(ctx context.Context, apply func(*types.AppSettings)) error {
	c.mu.Lock()
	next := c.settings.Get()
	apply(&next)
	err := c.settings.Put(context.WithoutCancel(ctx), next)
	c.mu.Unlock()

	c.emit(Event{Type: EventSettingsChanged, Settings: &next})
	if err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
