package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/qwennnzim-del/gen2-ai/internal/state"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

const maxTitleRunes = 30

// Controller turns user actions into persisted, displayed exchanges with
// the model. All session and settings mutations go through its mutex; the
// lock is released while the model call is outstanding.
type Controller struct {
	sessions *state.SessionStore
	settings *state.SettingsStore
	model    types.ModelService

	mu      sync.Mutex
	state   State
	active  types.SessionID
	display []types.Message

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// New creates a Controller over already-loaded stores.
func New(sessions *state.SessionStore, settings *state.SettingsStore, model types.ModelService) *Controller {
	return &Controller{
		sessions:  sessions,
		settings:  settings,
		model:     model,
		state:     StateIdle,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for controller events and returns a function that
// removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Controller) emit(events ...Event) {
	c.obsMu.Lock()
	fns := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// CanSend reports whether a send with the given input would be accepted.
func (c *Controller) CanSend(text string, attachments []types.Attachment) bool {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle
}

// Reply is the model turn produced by Send and the session it belongs to.
type Reply struct {
	types.Message
	SessionID types.SessionID `json:"session_id"`
}

// Send appends the user's message, asks the model for a reply and appends
// that too. A model failure is not returned: the reply becomes a fixed
// apology and the error is logged.
//
// Once accepted, a turn runs to completion even if ctx is cancelled.
func (c *Controller) Send(ctx context.Context, text string, attachments []types.Attachment) (Reply, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && len(attachments) == 0 {
		return Reply{}, ErrEmptyInput
	}
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Reply{}, ErrBusy
	}

	var events []Event
	settings := c.settings.Get()

	if c.active == "" {
		session := types.ChatSession{
			ID:        types.NewSessionID(),
			Title:     DeriveTitle(trimmed, len(attachments) > 0, settings.Language),
			Messages:  []types.Message{},
			UpdatedAt: c.sessions.Now(),
		}
		if err := c.sessions.Insert(ctx, session); err != nil {
			slog.Error("persist new session", "session", session.ID, "error", err)
		}
		c.active = session.ID
		c.display = nil
		events = append(events, Event{Type: EventSessionCreated, SessionID: session.ID})
	}
	sessionID := c.active

	// History is everything displayed before this turn.
	history := types.CloneMessages(c.display)

	userMsg := types.Message{
		ID:          types.NewMessageID(),
		Role:        types.RoleUser,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   c.sessions.Now(),
	}
	c.display = append(c.display, userMsg)
	c.upsert(ctx, sessionID, userMsg)
	c.state = StateSending
	events = append(events,
		Event{Type: EventMessageAppended, SessionID: sessionID, Message: &userMsg, Displayed: true},
		Event{Type: EventStateChanged, SessionID: sessionID, State: StateSending},
	)
	c.mu.Unlock()
	c.emit(events...)

	reply, err := c.model.Generate(ctx, types.GenerateRequest{
		History:     history,
		Text:        text,
		Model:       settings.Model,
		Language:    settings.Language,
		Attachments: attachments,
	})
	outcome := StateSettled
	if err != nil {
		slog.Error("generate reply", "session", sessionID, "model", settings.Model, "error", err)
		reply = FallbackText(settings.Language)
		outcome = StateFailed
	}

	c.mu.Lock()
	modelMsg := types.Message{
		ID:        types.NewMessageID(),
		Role:      types.RoleModel,
		Text:      reply,
		CreatedAt: c.sessions.Now(),
	}
	c.upsert(ctx, sessionID, modelMsg)
	displayed := c.active == sessionID
	if displayed {
		c.display = append(c.display, modelMsg)
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.emit(
		Event{Type: EventMessageAppended, SessionID: sessionID, Message: &modelMsg, Displayed: displayed},
		Event{Type: EventStateChanged, SessionID: sessionID, State: outcome},
		Event{Type: EventStateChanged, SessionID: sessionID, State: StateIdle},
	)
	return Reply{Message: modelMsg, SessionID: sessionID}, nil
}

// upsert writes msg to the session store. Must be called with c.mu held.
func (c *Controller) upsert(ctx context.Context, id types.SessionID, msg types.Message) {
	ok, err := c.sessions.UpsertMessage(ctx, id, msg)
	if err != nil {
		slog.Error("persist message", "session", id, "message", msg.ID, "error", err)
	}
	if !ok {
		slog.Debug("message for unknown session dropped", "session", id, "message", msg.ID)
	}
}

// StartNewChat clears the displayed conversation without touching stored
// sessions. The next Send creates a new session.
func (c *Controller) StartNewChat() {
	c.mu.Lock()
	c.active = ""
	c.display = nil
	c.mu.Unlock()
	c.emit(Event{Type: EventChatReset})
}

// SelectSession displays the session with the given ID. An unknown ID
// leaves everything unchanged and returns ErrSessionNotFound.
func (c *Controller) SelectSession(id types.SessionID) error {
	c.mu.Lock()
	session, ok := c.sessions.Get(id)
	if !ok {
		c.mu.Unlock()
		return ErrSessionNotFound
	}
	c.active = session.ID
	c.display = session.Messages
	c.mu.Unlock()
	c.emit(Event{Type: EventSessionSelected, SessionID: id})
	return nil
}

// Messages returns a copy of the displayed conversation.
func (c *Controller) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CloneMessages(c.display)
}

// ActiveSessionID returns the displayed session's ID, or "" if none.
func (c *Controller) ActiveSessionID() types.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns the current send state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sessions lists stored sessions, most recently updated first.
func (c *Controller) Sessions() []types.ChatSession {
	return c.sessions.List()
}

// Session returns a stored session by ID.
func (c *Controller) Session(id types.SessionID) (types.ChatSession, bool) {
	return c.sessions.Get(id)
}

// DeleteAllHistory removes every stored session and the persisted record,
// and clears the displayed conversation. Cancelling ctx does not stop it.
func (c *Controller) DeleteAllHistory(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	if err := c.sessions.DeleteAll(ctx); err != nil {
		slog.Error("delete history", "error", err)
	}
	c.active = ""
	c.display = nil
	c.mu.Unlock()
	c.emit(Event{Type: EventHistoryCleared})
}

// DeriveTitle builds a session title from the first message's text.
func DeriveTitle(text string, hasAttachments bool, lang types.Language) string {
	text = strings.TrimSpace(text)
	if text == "" {
		if hasAttachments {
			return localize(lang, "Attachment", "Lampiran")
		}
		return localize(lang, "New Chat", "Obrolan Baru")
	}
	runes := []rune(text)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "..."
	}
	return text
}

// FallbackText is the reply shown in place of a failed model call.
func FallbackText(lang types.Language) string {
	return localize(lang,
		"Sorry, something went wrong. Please check your connection or API key.",
		"Maaf, terjadi kesalahan. Silakan periksa koneksi atau API key Anda.",
	)
}

func localize(lang types.Language, en, id string) string {
	if lang == types.LangIndonesian {
		return id
	}
	return en
}
