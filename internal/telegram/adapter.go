package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
	"github.com/qwennnzim-del/gen2-ai/internal/conversation"
	"github.com/qwennnzim-del/gen2-ai/internal/state"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxListedSessions  = 10
	defaultConcurrent  = 4

	// downloadTimeout bounds one file download, which holds a semaphore slot.
	downloadTimeout = 2 * time.Minute
)

// Adapter bridges Telegram chats to conversation controllers. Each chat
// gets its own controller whose state lives under a per-chat key prefix.
type Adapter struct {
	bot   *tgbotapi.BotAPI
	kv    types.KVStore
	model types.ModelService
	fetch  func(fileID string) ([]byte, error)
	client *http.Client
	sem    *semaphore.Weighted

	mu    sync.Mutex
	chats map[int64]*conversation.Controller
}

// New creates a Telegram adapter. maxConcurrent bounds how many chats can
// wait on the model at once; values below 1 use a default.
func New(token string, kv types.KVStore, model types.ModelService, maxConcurrent int) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, kv, model)
	a.fetch = a.download
	if maxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return a, nil
}

func newAdapter(bot *tgbotapi.BotAPI, kv types.KVStore, model types.ModelService) *Adapter {
	return &Adapter{
		bot:    bot,
		kv:     kv,
		model:  model,
		client: &http.Client{Timeout: downloadTimeout},
		sem:    semaphore.NewWeighted(defaultConcurrent),
		chats:  make(map[int64]*conversation.Controller),
	}
}

// Start begins long-polling for Telegram updates and blocks until ctx is
// done. Messages are handled concurrently; each chat's controller rejects
// overlapping sends, and the semaphore bounds work across chats.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				if err := a.sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer a.sem.Release(1)
				reply := a.handleMessage(ctx, msg)
				if reply != "" {
					a.sendResponse(msg.Chat.ID, reply)
				}
			}(update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// controller returns the chat's controller, loading it on first use.
func (a *Adapter) controller(ctx context.Context, chatID int64) *conversation.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctrl, ok := a.chats[chatID]; ok {
		return ctrl
	}
	kv := state.Namespaced(a.kv, "telegram:"+strconv.FormatInt(chatID, 10)+":")
	sessions := state.NewSessionStore(kv)
	sessions.Load(ctx)
	settings := state.NewSettingsStore(kv)
	settings.Load(ctx)
	ctrl := conversation.New(sessions, settings, a.model)
	a.chats[chatID] = ctrl
	return ctrl
}

// handleMessage processes one inbound message and returns the reply text.
func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) string {
	ctrl := a.controller(ctx, msg.Chat.ID)
	lang := ctrl.Settings().Language

	if msg.IsCommand() {
		return a.handleCommand(ctx, ctrl, msg.Command(), msg.CommandArguments())
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	atts, err := a.attachments(msg)
	if err != nil {
		slog.Warn("telegram attachment rejected", "chat_id", msg.Chat.ID, "error", err)
		if errors.Is(err, attach.ErrTooLarge) {
			return localize(lang, "That file is too large (limit 20 MB).", "Berkas terlalu besar (batas 20 MB).")
		}
		return localize(lang, "I couldn't read that file.", "Saya tidak dapat membaca berkas itu.")
	}

	a.typing(msg.Chat.ID)
	reply, err := ctrl.Send(ctx, text, atts)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return localize(lang, "Still working on your previous message...", "Masih memproses pesan sebelumnya...")
	case errors.Is(err, conversation.ErrEmptyInput):
		return ""
	case err != nil:
		slog.Error("telegram send failed", "chat_id", msg.Chat.ID, "error", err)
		return conversation.FallbackText(lang)
	}
	return reply.Text
}

// attachments downloads the photo or document carried by msg, if any.
func (a *Adapter) attachments(msg *tgbotapi.Message) ([]types.Attachment, error) {
	var fileID, name, mimeType string
	var size int
	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		photo := msg.Photo[len(msg.Photo)-1]
		fileID, name, mimeType, size = photo.FileID, "photo.jpg", "image/jpeg", photo.FileSize
	case msg.Document != nil:
		doc := msg.Document
		fileID, name, mimeType, size = doc.FileID, doc.FileName, doc.MimeType, doc.FileSize
	default:
		return nil, nil
	}
	if size > attach.MaxSize {
		return nil, attach.ErrTooLarge
	}

	data, err := a.fetch(fileID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	if mimeType == "" {
		mimeType = attach.DetectMimeType(name, data)
	}
	att, err := attach.Encode(name, mimeType, data)
	if err != nil {
		return nil, err
	}
	return []types.Attachment{att}, nil
}

func (a *Adapter) download(fileID string) ([]byte, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	return a.get(url)
}

func (a *Adapter) get(url string) ([]byte, error) {
	resp, err := a.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, attach.MaxSize+1))
}

func (a *Adapter) handleCommand(ctx context.Context, ctrl *conversation.Controller, cmd, args string) string {
	lang := ctrl.Settings().Language
	args = strings.TrimSpace(args)

	switch cmd {
	case "start":
		return localize(lang,
			"Hello! I'm Gen2 by Zent Technology. Send me a message, a photo or a document to get started.",
			"Halo! Saya Gen2 dari Zent Technology. Kirim pesan, foto atau dokumen untuk memulai.")

	case "new":
		ctrl.StartNewChat()
		return localize(lang, "Started a new chat.", "Memulai obrolan baru.")

	case "sessions":
		sessions := ctrl.Sessions()
		if len(sessions) == 0 {
			return localize(lang, "No saved chats yet.", "Belum ada obrolan tersimpan.")
		}
		active := ctrl.ActiveSessionID()
		var sb strings.Builder
		for i, s := range sessions {
			if i == maxListedSessions {
				break
			}
			marker := " "
			if s.ID == active {
				marker = "*"
			}
			fmt.Fprintf(&sb, "%s%d. %s (%d)\n", marker, i+1, s.Title, len(s.Messages))
		}
		sb.WriteString(localize(lang, "\nUse /open <number> to continue a chat.", "\nGunakan /open <nomor> untuk melanjutkan obrolan."))
		return sb.String()

	case "open":
		n, err := strconv.Atoi(args)
		sessions := ctrl.Sessions()
		if err != nil || n < 1 || n > len(sessions) {
			return localize(lang, "Usage: /open <number> (see /sessions)", "Penggunaan: /open <nomor> (lihat /sessions)")
		}
		if err := ctrl.SelectSession(sessions[n-1].ID); err != nil {
			return localize(lang, "That chat no longer exists.", "Obrolan itu sudah tidak ada.")
		}
		return fmt.Sprintf("%s: %s", localize(lang, "Opened", "Dibuka"), sessions[n-1].Title)

	case "model":
		if args == "" {
			current := ctrl.Settings().Model
			var sb strings.Builder
			for _, m := range types.Models {
				marker := " "
				if m == current {
					marker = "*"
				}
				fmt.Fprintf(&sb, "%s %s (%s)\n", marker, m.Label(), m)
			}
			return sb.String()
		}
		m, ok := types.ParseModel(args)
		if !ok {
			return localize(lang, "Unknown model. Try: pro, v3, v2", "Model tidak dikenal. Coba: pro, v3, v2")
		}
		if err := ctrl.SetModel(ctx, m); err != nil {
			return notSaved(lang, err)
		}
		return fmt.Sprintf("%s %s", localize(lang, "Model set to", "Model diubah ke"), m.Label())

	case "lang":
		l := types.Language(strings.ToLower(args))
		if err := ctrl.SetLanguage(ctx, l); errors.Is(err, conversation.ErrInvalidLanguage) {
			return localize(lang, "Usage: /lang en|id", "Penggunaan: /lang en|id")
		} else if err != nil {
			return notSaved(l, err)
		}
		return localize(l, "Language set to English.", "Bahasa diubah ke Bahasa Indonesia.")

	case "clear":
		ctrl.DeleteAllHistory(ctx)
		return localize(lang, "All chat history deleted.", "Semua riwayat obrolan dihapus.")

	default:
		return localize(lang,
			"Unknown command. Available: /start, /new, /sessions, /open, /model, /lang, /clear",
			"Perintah tidak dikenal. Tersedia: /start, /new, /sessions, /open, /model, /lang, /clear")
	}
}

func (a *Adapter) typing(chatID int64) {
	if a.bot == nil {
		return
	}
	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send typing action", "error", err)
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message error", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into Telegram-sized parts without splitting a
// UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func notSaved(lang types.Language, err error) string {
	slog.Error("save telegram settings", "error", err)
	return localize(lang, "Changed, but the setting could not be saved.", "Diubah, tetapi pengaturan tidak dapat disimpan.")
}

func localize(lang types.Language, en, id string) string {
	if lang == types.LangIndonesian {
		return id
	}
	return en
}
