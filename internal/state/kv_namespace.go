package state

import (
	"context"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// NamespacedKV prefixes every key before delegating, so several independent
// controllers can share one backend.
type NamespacedKV struct {
	inner  types.KVStore
	prefix string
}

// Namespaced wraps inner so that all keys are stored as prefix+key.
func Namespaced(inner types.KVStore, prefix string) *NamespacedKV {
	return &NamespacedKV{inner: inner, prefix: prefix}
}

func (n *NamespacedKV) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *NamespacedKV) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *NamespacedKV) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}
