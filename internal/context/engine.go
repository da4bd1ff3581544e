// internal/context/engine.go
package context

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
	"github.com/qwennnzim-del/gen2-ai/pkg/llm"
)

// inlineTokenCost is the flat token estimate for one image or binary file.
const inlineTokenCost = 258

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	tmpl      *template.Template
}

// PromptData is the data available to the system prompt template.
type PromptData struct {
	Time     string
	Language string
	Model    string
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer; unknown models fall
// back to cl100k_base, and if no encoding can be loaded token counts are
// approximated at four characters per token.
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tokenizer unavailable, approximating token counts", "error", err)
			enc = nil
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		tmpl:      tmpl,
	}, nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	if e.tokenizer == nil {
		return (len(text) + 3) / 4
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}

func (e *Engine) countMessage(msg llm.Message) int {
	n := e.countTokens(msg.Content)
	for _, p := range msg.Parts {
		if p.Type == llm.PartText {
			n += e.countTokens(p.Text)
		} else {
			n += inlineTokenCost
		}
	}
	return n
}

// SystemPrompt renders the system instruction for the given request.
func (e *Engine) SystemPrompt(req types.GenerateRequest, now time.Time) (string, error) {
	var sb strings.Builder
	err := e.tmpl.Execute(&sb, PromptData{
		Time:     now.Format(time.RFC3339),
		Language: languageName(req.Language),
		Model:    req.Model.Label(),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return sb.String(), nil
}

// BuildPrompt assembles system instruction, as much history as fits the
// budget (newest kept first), and the new user message.
func (e *Engine) BuildPrompt(req types.GenerateRequest, now time.Time) ([]llm.Message, error) {
	sysPrompt, err := e.SystemPrompt(req, now)
	if err != nil {
		return nil, err
	}
	current := userMessage(req.Text, req.Attachments)

	remaining := e.maxTokens - e.reserve - e.countTokens(sysPrompt) - e.countMessage(current)

	// Walk history backwards so the most recent turns survive trimming.
	var kept []llm.Message
	for i := len(req.History) - 1; i >= 0; i-- {
		msg := toLLMMessage(req.History[i])
		cost := e.countMessage(msg)
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, msg)
	}

	messages := make([]llm.Message, 0, len(kept)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	messages = append(messages, current)
	return messages, nil
}

func toLLMMessage(msg types.Message) llm.Message {
	if msg.Role == types.RoleModel {
		return llm.Message{Role: "assistant", Content: msg.Text}
	}
	return userMessage(msg.Text, msg.Attachments)
}

func userMessage(text string, atts []types.Attachment) llm.Message {
	if len(atts) == 0 {
		return llm.Message{Role: "user", Content: text}
	}
	parts := make([]llm.Part, 0, len(atts)+1)
	if text != "" {
		parts = append(parts, llm.TextPart(text))
	}
	for _, att := range atts {
		parts = append(parts, attachmentPart(att))
	}
	return llm.Message{Role: "user", Parts: parts}
}

// attachmentPart converts an attachment into a content part. Textual
// documents are inlined as text (HTML converted to markdown); everything
// else is sent as binary data.
func attachmentPart(att types.Attachment) llm.Part {
	if att.Kind == types.KindImage {
		return llm.Part{Type: llm.PartImage, URL: att.Encoded}
	}
	if att.Kind == types.KindDocument && isTextual(att.Source) {
		if _, data, err := attach.DecodeDataURI(att.Encoded); err == nil {
			body := string(data)
			if att.Source.MimeType == "text/html" {
				if md, err := htmltomarkdown.ConvertString(body); err == nil {
					body = md
				}
			}
			return llm.TextPart(fmt.Sprintf("[File: %s]\n```\n%s\n```", att.Source.Name, body))
		}
	}
	return llm.Part{Type: llm.PartFile, URL: att.Encoded, FileName: att.Source.Name}
}

func isTextual(src types.SourceFile) bool {
	if strings.HasPrefix(src.MimeType, "text/") {
		return true
	}
	switch src.MimeType {
	case "application/json", "application/xml", "application/javascript", "application/x-yaml":
		return true
	}
	switch attach.CategoryOf(src.Name, src.MimeType) {
	case attach.CategoryCode:
		return true
	}
	return false
}

func languageName(l types.Language) string {
	if l == types.LangIndonesian {
		return "Bahasa Indonesia"
	}
	return "English"
}
