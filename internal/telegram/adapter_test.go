package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
	"github.com/qwennnzim-del/gen2-ai/internal/state"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

type mockModel struct {
	mu       sync.Mutex
	requests []types.GenerateRequest
}

func (m *mockModel) Generate(_ context.Context, req types.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return "echo: " + req.Text, nil
}

func newTestAdapter(t *testing.T) (*Adapter, *mockModel, *state.MemoryKV) {
	t.Helper()
	kv := state.NewMemoryKV()
	model := &mockModel{}
	a := newAdapter(nil, kv, model)
	a.fetch = func(fileID string) ([]byte, error) {
		return []byte("file:" + fileID), nil
	}
	return a, model, kv
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessageMultibyte(t *testing.T) {
	long := "a" + strings.Repeat("é", 3000)
	parts := splitMessage(long)
	if strings.Join(parts, "") != long {
		t.Fatal("parts do not reassemble the original text")
	}
	for i, p := range parts {
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8", i)
		}
		if len(p) > maxTelegramMessage {
			t.Errorf("part %d exceeds limit: %d", i, len(p))
		}
	}
}

func TestHandleTextMessage(t *testing.T) {
	a, model, _ := newTestAdapter(t)
	ctx := context.Background()

	reply := a.handleMessage(ctx, textMessage(1, "hello"))
	if reply != "echo: hello" {
		t.Errorf("unexpected reply %q", reply)
	}

	reply = a.handleMessage(ctx, textMessage(1, "again"))
	if reply != "echo: again" {
		t.Errorf("unexpected reply %q", reply)
	}
	if got := len(model.requests[1].History); got != 2 {
		t.Errorf("expected 2 history messages on second turn, got %d", got)
	}
}

func TestChatsAreIsolated(t *testing.T) {
	a, _, kv := newTestAdapter(t)
	ctx := context.Background()

	a.handleMessage(ctx, textMessage(1, "from chat one"))
	a.handleMessage(ctx, textMessage(2, "from chat two"))

	if n := len(a.controller(ctx, 1).Sessions()); n != 1 {
		t.Errorf("expected 1 session in chat 1, got %d", n)
	}
	raw, ok, _ := kv.Get(ctx, "telegram:2:"+state.SessionsKey)
	if !ok || !strings.Contains(raw, "from chat two") || strings.Contains(raw, "from chat one") {
		t.Errorf("chat 2 sessions not stored under their own prefix: %q", raw)
	}

	// A fresh adapter over the same store sees persisted chats.
	b := newAdapter(nil, kv, &mockModel{})
	if n := len(b.controller(ctx, 2).Sessions()); n != 1 {
		t.Errorf("expected persisted session for chat 2, got %d", n)
	}
}

func TestHandlePhotoMessage(t *testing.T) {
	a, model, _ := newTestAdapter(t)

	msg := &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 7},
		Caption: "what is this?",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileSize: 10},
			{FileID: "large", FileSize: 100},
		},
	}
	reply := a.handleMessage(context.Background(), msg)
	if reply != "echo: what is this?" {
		t.Errorf("unexpected reply %q", reply)
	}

	req := model.requests[0]
	if len(req.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(req.Attachments))
	}
	att := req.Attachments[0]
	if att.Kind != types.KindImage {
		t.Errorf("expected image attachment, got %s", att.Kind)
	}
	_, data, err := attach.DecodeDataURI(att.Encoded)
	if err != nil || string(data) != "file:large" {
		t.Errorf("expected largest photo to be downloaded, got %q (%v)", data, err)
	}
}

func TestHandleDocumentTooLarge(t *testing.T) {
	a, model, _ := newTestAdapter(t)

	msg := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 7},
		Document: &tgbotapi.Document{
			FileID:   "big",
			FileName: "dump.pdf",
			MimeType: "application/pdf",
			FileSize: attach.MaxSize + 1,
		},
	}
	reply := a.handleMessage(context.Background(), msg)
	if !strings.Contains(reply, "too large") {
		t.Errorf("expected size rejection, got %q", reply)
	}
	if len(model.requests) != 0 {
		t.Error("model should not be called for a rejected file")
	}
}

func TestCommands(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()
	ctrl := a.controller(ctx, 1)

	a.handleMessage(ctx, textMessage(1, "first topic"))
	if out := a.handleCommand(ctx, ctrl, "new", ""); !strings.Contains(out, "new chat") {
		t.Errorf("unexpected /new reply %q", out)
	}
	if ctrl.ActiveSessionID() != "" {
		t.Error("expected /new to clear the active session")
	}

	out := a.handleCommand(ctx, ctrl, "sessions", "")
	if !strings.Contains(out, "1. first topic") {
		t.Errorf("expected session listing, got %q", out)
	}

	if out := a.handleCommand(ctx, ctrl, "open", "1"); !strings.Contains(out, "first topic") {
		t.Errorf("unexpected /open reply %q", out)
	}
	if len(ctrl.Messages()) != 2 {
		t.Errorf("expected opened chat to display 2 messages, got %d", len(ctrl.Messages()))
	}
	if out := a.handleCommand(ctx, ctrl, "open", "9"); !strings.Contains(out, "Usage") {
		t.Errorf("expected usage for bad index, got %q", out)
	}

	if out := a.handleCommand(ctx, ctrl, "model", "pro"); !strings.Contains(out, "Gen2 V3 Pro") {
		t.Errorf("unexpected /model reply %q", out)
	}
	if ctrl.Settings().Model != types.ModelV3Pro {
		t.Errorf("expected model to be switched, got %s", ctrl.Settings().Model)
	}
	if out := a.handleCommand(ctx, ctrl, "model", ""); !strings.Contains(out, "* Gen2 V3 Pro") {
		t.Errorf("expected current model marked, got %q", out)
	}

	if out := a.handleCommand(ctx, ctrl, "lang", "id"); !strings.Contains(out, "Bahasa Indonesia") {
		t.Errorf("unexpected /lang reply %q", out)
	}
	if out := a.handleCommand(ctx, ctrl, "clear", ""); !strings.Contains(out, "dihapus") {
		t.Errorf("expected Indonesian /clear reply, got %q", out)
	}
	if len(ctrl.Sessions()) != 0 {
		t.Error("expected /clear to delete all sessions")
	}
}

func TestDownloadTimesOut(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	if a.client.Timeout != downloadTimeout {
		t.Fatalf("expected download timeout %v, got %v", downloadTimeout, a.client.Timeout)
	}

	stalled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-stalled:
		}
	}))
	defer srv.Close()
	defer close(stalled)

	a.client = &http.Client{Timeout: 50 * time.Millisecond}
	start := time.Now()
	if _, err := a.get(srv.URL); err == nil {
		t.Fatal("expected a stalled download to fail")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("download held for %v", elapsed)
	}
}
