package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ctxengine "github.com/qwennnzim-del/gen2-ai/internal/context"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
	"github.com/qwennnzim-del/gen2-ai/pkg/llm"
)

// ErrUnsupportedModel is returned for a model outside types.Models.
var ErrUnsupportedModel = errors.New("unsupported model")

// Options holds generation parameters passed through to the provider.
type Options struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Runtime turns a GenerateRequest into a single model reply.
type Runtime struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	opts     Options
	now      func() time.Time
}

var _ types.ModelService = (*Runtime)(nil)

// New creates a Runtime with the given dependencies.
func New(provider llm.Provider, engine *ctxengine.Engine, opts Options) *Runtime {
	return &Runtime{
		provider: provider,
		engine:   engine,
		opts:     opts,
		now:      time.Now,
	}
}

// Generate builds the prompt, calls the model and returns its text. An
// empty model means the default one; an unknown model is an error. An
// empty completion is replaced by a localized placeholder reply.
func (rt *Runtime) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = types.DefaultModel
	}
	if !model.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}

	messages, err := rt.engine.BuildPrompt(req, rt.now())
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	start := time.Now()
	resp, err := rt.provider.Complete(ctx, llm.Request{
		Model:       string(model),
		Messages:    messages,
		MaxTokens:   rt.opts.MaxTokens,
		Temperature: rt.opts.Temperature,
		TopP:        rt.opts.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("LLM call: %w", err)
	}
	slog.Debug("generation complete",
		"model", model,
		"messages", len(messages),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
		"elapsed", time.Since(start),
	)

	if strings.TrimSpace(resp.Content) == "" {
		return EmptyReply(req.Language), nil
	}
	return resp.Content, nil
}

// EmptyReply is the text shown when the model returns nothing.
func EmptyReply(lang types.Language) string {
	if lang == types.LangIndonesian {
		return "Maaf, saya tidak dapat menghasilkan respons."
	}
	return "I couldn't generate a response."
}
