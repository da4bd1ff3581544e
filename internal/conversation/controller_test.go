package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qwennnzim-del/gen2-ai/internal/state"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// stepClock advances by one second on every call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeModel records requests. When gate is set, Generate blocks until a
// value is received from it. Like a real transport, it fails once its
// context is done.
type fakeModel struct {
	mu       sync.Mutex
	requests []types.GenerateRequest
	reply    string
	err      error
	started  chan struct{}
	gate     chan struct{}
}

func (m *fakeModel) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply, m.err
}

func (m *fakeModel) lastRequest() types.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// flakyKV fails every write while failing is set.
type flakyKV struct {
	*state.MemoryKV
	failing bool
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

type fixture struct {
	ctrl     *Controller
	kv       types.KVStore
	sessions *state.SessionStore
	model    *fakeModel
}

func newFixture(t *testing.T, kv types.KVStore, model *fakeModel) *fixture {
	t.Helper()
	if kv == nil {
		kv = state.NewMemoryKV()
	}
	ctx := context.Background()
	sessions := state.NewSessionStore(kv)
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sessions.SetClock(clock.Now)
	sessions.Load(ctx)
	settings := state.NewSettingsStore(kv)
	settings.Load(ctx)
	return &fixture{
		ctrl:     New(sessions, settings, model),
		kv:       kv,
		sessions: sessions,
		model:    model,
	}
}

func TestSendCreatesSession(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "Hi there"})
	ctx := context.Background()

	reply, err := f.ctrl.Send(ctx, "Hello", nil)
	require.NoError(t, err)
	require.Equal(t, types.RoleModel, reply.Role)
	require.Equal(t, "Hi there", reply.Text)

	sessions := f.ctrl.Sessions()
	require.Len(t, sessions, 1)
	s := sessions[0]
	require.Equal(t, "Hello", s.Title)
	require.Equal(t, f.ctrl.ActiveSessionID(), s.ID)
	require.Len(t, s.Messages, 2)
	require.Equal(t, types.RoleUser, s.Messages[0].Role)
	require.Equal(t, "Hello", s.Messages[0].Text)
	require.Equal(t, "Hi there", s.Messages[1].Text)
	require.Equal(t, StateIdle, f.ctrl.State())

	raw, ok, err := f.kv.Get(ctx, state.SessionsKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, raw, "Hi there")
}

func TestSendMovesSessionToFront(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	_, err := f.ctrl.Send(ctx, "first chat", nil)
	require.NoError(t, err)
	first := f.ctrl.ActiveSessionID()
	before, _ := f.ctrl.Session(first)

	f.ctrl.StartNewChat()
	_, err = f.ctrl.Send(ctx, "second chat", nil)
	require.NoError(t, err)
	require.NotEqual(t, first, f.ctrl.Sessions()[0].ID)

	require.NoError(t, f.ctrl.SelectSession(first))
	_, err = f.ctrl.Send(ctx, "back again", nil)
	require.NoError(t, err)

	sessions := f.ctrl.Sessions()
	require.Equal(t, first, sessions[0].ID)
	require.True(t, sessions[0].UpdatedAt.After(before.UpdatedAt))
	require.Len(t, sessions[0].Messages, 4)
}

func TestHistoryExcludesCurrentMessage(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	_, err := f.ctrl.Send(ctx, "one", nil)
	require.NoError(t, err)
	require.Empty(t, f.model.lastRequest().History)

	_, err = f.ctrl.Send(ctx, "two", nil)
	require.NoError(t, err)

	req := f.model.lastRequest()
	require.Equal(t, "two", req.Text)
	require.Len(t, req.History, 2)
	require.Equal(t, "one", req.History[0].Text)
	require.Equal(t, "ok", req.History[1].Text)
	for _, m := range req.History {
		require.NotEqual(t, "two", m.Text)
	}
}

func TestDisplayedMatchesSession(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		before := len(f.ctrl.Messages())
		_, err := f.ctrl.Send(ctx, text, nil)
		require.NoError(t, err)

		displayed := f.ctrl.Messages()
		session, ok := f.ctrl.Session(f.ctrl.ActiveSessionID())
		require.True(t, ok)
		require.Len(t, displayed, before+2)
		require.Equal(t, session.Messages, displayed)
	}
}

func TestSendModelFailure(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{err: errors.New("dial tcp: connection refused")})

	reply, err := f.ctrl.Send(context.Background(), "Hello", nil)
	require.NoError(t, err)
	require.Equal(t, FallbackText(types.LangEnglish), reply.Text)

	session, _ := f.ctrl.Session(f.ctrl.ActiveSessionID())
	require.Len(t, session.Messages, 2)
	require.Equal(t, types.RoleUser, session.Messages[0].Role)
	require.Equal(t, types.RoleModel, session.Messages[1].Role)
	require.NotContains(t, session.Messages[1].Text, "connection refused")
	require.Equal(t, StateIdle, f.ctrl.State())
}

func TestSendModelFailureIndonesian(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{err: errors.New("boom")})
	ctx := context.Background()
	require.NoError(t, f.ctrl.SetLanguage(ctx, types.LangIndonesian))

	reply, err := f.ctrl.Send(ctx, "Halo", nil)
	require.NoError(t, err)
	require.Equal(t, "Maaf, terjadi kesalahan. Silakan periksa koneksi atau API key Anda.", reply.Text)
}

func TestSendEmptyInput(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})

	_, err := f.ctrl.Send(context.Background(), "   ", nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Empty(t, f.ctrl.Sessions())
	require.False(t, f.ctrl.CanSend("", nil))
	require.True(t, f.ctrl.CanSend("", []types.Attachment{{Kind: types.KindImage}}))
}

func TestSendAttachmentOnly(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "nice cat"})
	att := types.Attachment{
		Source:  types.SourceFile{Name: "cat.png", MimeType: "image/png", Size: 3},
		Encoded: "data:image/png;base64,AQID",
		Kind:    types.KindImage,
	}

	_, err := f.ctrl.Send(context.Background(), "", []types.Attachment{att})
	require.NoError(t, err)

	session := f.ctrl.Sessions()[0]
	require.Equal(t, "Attachment", session.Title)
	require.Equal(t, []types.Attachment{att}, session.Messages[0].Attachments)
	require.Equal(t, []types.Attachment{att}, f.model.lastRequest().Attachments)
}

func TestSendWhileBusy(t *testing.T) {
	model := &fakeModel{reply: "done", started: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, nil, model)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Send(ctx, "slow", nil)
		errc <- err
	}()
	<-model.started

	require.Equal(t, StateSending, f.ctrl.State())
	require.False(t, f.ctrl.CanSend("again", nil))
	_, err := f.ctrl.Send(ctx, "again", nil)
	require.ErrorIs(t, err, ErrBusy)

	// The optimistic user message is already visible.
	require.Len(t, f.ctrl.Messages(), 1)

	close(model.gate)
	require.NoError(t, <-errc)
	require.Equal(t, StateIdle, f.ctrl.State())
	require.Len(t, f.ctrl.Messages(), 2)
}

func TestReplyAfterSwitchingAway(t *testing.T) {
	model := &fakeModel{reply: "late reply", started: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, nil, model)
	ctx := context.Background()

	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := f.ctrl.Send(ctx, "question", nil)
		done <- result{reply, err}
	}()
	<-model.started
	owner := f.ctrl.ActiveSessionID()
	f.ctrl.StartNewChat()

	close(model.gate)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, owner, res.reply.SessionID)

	require.Empty(t, f.ctrl.Messages())
	require.Empty(t, f.ctrl.ActiveSessionID())
	session, ok := f.ctrl.Session(owner)
	require.True(t, ok)
	require.Len(t, session.Messages, 2)
	require.Equal(t, "late reply", session.Messages[1].Text)
}

func TestSelectSession(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	_, err := f.ctrl.Send(ctx, "remember me", nil)
	require.NoError(t, err)
	id := f.ctrl.ActiveSessionID()

	f.ctrl.StartNewChat()
	require.Empty(t, f.ctrl.Messages())
	require.Len(t, f.ctrl.Sessions(), 1)

	require.NoError(t, f.ctrl.SelectSession(id))
	require.Equal(t, id, f.ctrl.ActiveSessionID())
	require.Len(t, f.ctrl.Messages(), 2)
}

func TestSelectUnknownSessionIsNoop(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	_, err := f.ctrl.Send(ctx, "stay here", nil)
	require.NoError(t, err)
	id := f.ctrl.ActiveSessionID()
	before := f.ctrl.Messages()

	err = f.ctrl.SelectSession("missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Equal(t, id, f.ctrl.ActiveSessionID())
	require.Equal(t, before, f.ctrl.Messages())
}

func TestDeleteAllHistory(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	_, err := f.ctrl.Send(ctx, "to be forgotten", nil)
	require.NoError(t, err)
	require.NotEmpty(t, f.ctrl.ActiveSessionID())

	f.ctrl.DeleteAllHistory(ctx)

	require.Empty(t, f.ctrl.Messages())
	require.Empty(t, f.ctrl.ActiveSessionID())
	require.Empty(t, f.ctrl.Sessions())
	_, ok, err := f.kv.Get(ctx, state.SessionsKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorruptPersistedSessions(t *testing.T) {
	kv := state.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), state.SessionsKey, "\xff\xfe{not json"))

	f := newFixture(t, kv, &fakeModel{reply: "ok"})
	require.Empty(t, f.ctrl.Sessions())

	_, err := f.ctrl.Send(context.Background(), "fresh start", nil)
	require.NoError(t, err)
	require.Len(t, f.ctrl.Sessions(), 1)
}

func TestPersistFailureKeepsTurn(t *testing.T) {
	kv := &flakyKV{MemoryKV: state.NewMemoryKV(), failing: true}
	f := newFixture(t, kv, &fakeModel{reply: "still here"})

	reply, err := f.ctrl.Send(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, "still here", reply.Text)
	require.Len(t, f.ctrl.Messages(), 2)
	require.Len(t, f.ctrl.Sessions(), 1)

	_, ok, _ := kv.Get(context.Background(), state.SessionsKey)
	require.False(t, ok)
}

func TestSendIgnoresCallerCancellation(t *testing.T) {
	model := &fakeModel{reply: "complete", started: make(chan struct{}), gate: make(chan struct{})}
	f := newFixture(t, nil, model)
	ctx, cancel := context.WithCancel(context.Background())

	var reply Reply
	errc := make(chan error, 1)
	go func() {
		var err error
		reply, err = f.ctrl.Send(ctx, "question", nil)
		errc <- err
	}()
	<-model.started
	cancel()
	close(model.gate)

	require.NoError(t, <-errc)
	require.Equal(t, "complete", reply.Text)
	session, ok := f.ctrl.Session(reply.SessionID)
	require.True(t, ok)
	require.Len(t, session.Messages, 2)
	require.Equal(t, "complete", session.Messages[1].Text)
	require.Equal(t, session.Messages, f.ctrl.Messages())
}

func TestSettingsPersistFailureIsReported(t *testing.T) {
	kv := &flakyKV{MemoryKV: state.NewMemoryKV()}
	f := newFixture(t, kv, &fakeModel{reply: "ok"})
	ctx := context.Background()

	kv.failing = true
	err := f.ctrl.SetLanguage(ctx, types.LangIndonesian)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidLanguage)
	require.Equal(t, types.LangIndonesian, f.ctrl.Settings().Language)

	_, ok, err := kv.Get(ctx, state.SettingsKey)
	require.NoError(t, err)
	require.False(t, ok)

	kv.failing = false
	require.NoError(t, f.ctrl.SetModel(ctx, types.ModelV2))
	raw, ok, err := kv.Get(ctx, state.SettingsKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, raw, `"id"`)
}

func TestSettings(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})
	ctx := context.Background()

	require.Equal(t, types.DefaultSettings(), f.ctrl.Settings())

	require.ErrorIs(t, f.ctrl.SetModel(ctx, "gpt-5"), ErrInvalidModel)
	require.ErrorIs(t, f.ctrl.SetLanguage(ctx, "fr"), ErrInvalidLanguage)

	require.NoError(t, f.ctrl.SetModel(ctx, types.ModelV3Pro))
	require.NoError(t, f.ctrl.SetLanguage(ctx, types.LangIndonesian))

	raw, ok, err := f.kv.Get(ctx, state.SettingsKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, raw, string(types.ModelV3Pro))
	require.Contains(t, raw, `"id"`)

	_, err = f.ctrl.Send(ctx, "hi", nil)
	require.NoError(t, err)
	req := f.model.lastRequest()
	require.Equal(t, types.ModelV3Pro, req.Model)
	require.Equal(t, types.LangIndonesian, req.Language)
}

func TestObserverEvents(t *testing.T) {
	f := newFixture(t, nil, &fakeModel{reply: "ok"})

	var mu sync.Mutex
	var got []string
	unsubscribe := f.ctrl.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		name := string(ev.Type)
		if ev.Type == EventStateChanged {
			name += ":" + string(ev.State)
		}
		got = append(got, name)
	})

	_, err := f.ctrl.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	f.ctrl.StartNewChat()
	unsubscribe()
	f.ctrl.StartNewChat()

	require.Equal(t, []string{
		"session_created",
		"message_appended",
		"state_changed:sending",
		"message_appended",
		"state_changed:settled",
		"state_changed:idle",
		"chat_reset",
	}, got)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		hasAtt bool
		lang   types.Language
		want   string
	}{
		{"short", "Hello", false, types.LangEnglish, "Hello"},
		{"trimmed", "  Hello  ", false, types.LangEnglish, "Hello"},
		{"exactly thirty", strings.Repeat("a", 30), false, types.LangEnglish, strings.Repeat("a", 30)},
		{"truncated", strings.Repeat("a", 31), false, types.LangEnglish, strings.Repeat("a", 30) + "..."},
		{"multibyte", strings.Repeat("é", 40), false, types.LangEnglish, strings.Repeat("é", 30) + "..."},
		{"attachment en", "", true, types.LangEnglish, "Attachment"},
		{"attachment id", "", true, types.LangIndonesian, "Lampiran"},
		{"empty en", "", false, types.LangEnglish, "New Chat"},
		{"empty id", " ", false, types.LangIndonesian, "Obrolan Baru"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DeriveTitle(tt.text, tt.hasAtt, tt.lang))
		})
	}
}
