package attach

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// gatedReader lets a test decide the order in which reads complete.
type gatedReader struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newGatedReader(paths ...string) *gatedReader {
	g := &gatedReader{gates: make(map[string]chan struct{})}
	for _, p := range paths {
		g.gates[p] = make(chan struct{})
	}
	return g
}

func (g *gatedReader) read(path string) (types.Attachment, error) {
	g.mu.Lock()
	gate := g.gates[path]
	g.mu.Unlock()
	<-gate
	if path == "broken" {
		return types.Attachment{}, errors.New("unreadable")
	}
	return types.Attachment{Source: types.SourceFile{Name: path}}, nil
}

func (g *gatedReader) release(path string) {
	close(g.gates[path])
}

func names(atts []types.Attachment) []string {
	out := make([]string, len(atts))
	for i, a := range atts {
		out[i] = a.Source.Name
	}
	return out
}

// The final order of a batch follows completion, not selection. This is the
// accepted behavior; callers that need selection order must sort themselves.
func TestPendingKeepsArrivalOrder(t *testing.T) {
	reader := newGatedReader("first", "second", "third")
	p := NewPending()
	p.read = reader.read

	done := make(chan error)
	go func() { done <- p.AddFiles(context.Background(), "first", "second", "third") }()

	for _, name := range []string{"third", "first", "second"} {
		reader.release(name)
		require.Eventually(t, func() bool {
			list := p.List()
			return len(list) > 0 && list[len(list)-1].Source.Name == name
		}, time.Second, time.Millisecond)
	}
	require.NoError(t, <-done)
	require.Equal(t, []string{"third", "first", "second"}, names(p.List()))
}

func TestPendingBatchContainsEverySelection(t *testing.T) {
	reader := newGatedReader("a", "b", "c", "d")
	p := NewPending()
	p.read = reader.read

	for name := range reader.gates {
		reader.release(name)
	}
	require.NoError(t, p.AddFiles(context.Background(), "a", "b", "c", "d"))

	got := names(p.List())
	sort.Strings(got)
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestPendingSkipsFailedReads(t *testing.T) {
	reader := newGatedReader("ok", "broken")
	reader.release("ok")
	reader.release("broken")
	p := NewPending()
	p.read = reader.read

	err := p.AddFiles(context.Background(), "ok", "broken")
	require.Error(t, err)
	require.Equal(t, []string{"ok"}, names(p.List()))
}

func TestPendingRemoveAndTake(t *testing.T) {
	p := NewPending()
	for _, n := range []string{"a", "b", "c"} {
		p.Add(types.Attachment{Source: types.SourceFile{Name: n}})
	}

	require.True(t, p.Remove(1))
	require.False(t, p.Remove(5))
	require.Equal(t, []string{"a", "c"}, names(p.List()))

	taken := p.Take()
	require.Equal(t, []string{"a", "c"}, names(taken))
	require.Equal(t, 0, p.Len())
}

func TestPendingCancelledBatchReportsError(t *testing.T) {
	reader := newGatedReader("a", "b")
	reader.release("a")
	reader.release("b")
	p := NewPending()
	p.read = reader.read

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.AddFiles(ctx, "a", "b")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, p.Len())
}
