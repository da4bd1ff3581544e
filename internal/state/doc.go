// Package state provides the persisted key-value backends and the
// write-through session and settings stores built on top of them.
package state

import "github.com/qwennnzim-del/gen2-ai/internal/types"

// Compile-time interface compliance checks.
var _ types.KVStore = (*FileKV)(nil)
var _ types.KVStore = (*SQLiteKV)(nil)
var _ types.KVStore = (*MemoryKV)(nil)
var _ types.KVStore = (*NamespacedKV)(nil)
