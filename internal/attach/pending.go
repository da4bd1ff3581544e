package attach

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// maxParallelReads bounds concurrent file encodes in one batch.
const maxParallelReads = 4

// Pending collects attachments for the next message. Files are encoded
// concurrently and appended in the order their encoding finishes, which is
// not necessarily the order they were selected.
type Pending struct {
	mu    sync.Mutex
	items []types.Attachment
	read  func(path string) (types.Attachment, error)
}

func NewPending() *Pending {
	return &Pending{read: ReadFile}
}

// AddFiles encodes every path in its own goroutine. Files that fail are
// skipped and the first read error is returned after all reads finish.
// If ctx is cancelled, files not yet read are skipped and ctx's error is
// returned.
func (p *Pending) AddFiles(ctx context.Context, paths ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)

	var (
		errMu    sync.Mutex
		firstErr error
	)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			att, err := p.read(path)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("attach %s: %w", path, err)
				}
				errMu.Unlock()
				return nil
			}
			p.Add(att)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("attach batch incomplete: %w", err)
	}
	return firstErr
}

// Add appends an already encoded attachment.
func (p *Pending) Add(att types.Attachment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, att)
}

// Remove drops the attachment at index i. Out-of-range indexes are ignored.
func (p *Pending) Remove(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return false
	}
	p.items = append(p.items[:i:i], p.items[i+1:]...)
	return true
}

// List returns a copy of the pending attachments.
func (p *Pending) List() []types.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Attachment, len(p.items))
	copy(out, p.items)
	return out
}

// Take returns the pending attachments and clears the list.
func (p *Pending) Take() []types.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.items
	p.items = nil
	return out
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
