// internal/types/interfaces.go
package types

import (
	"context"
)

// KVStore is the persisted key-value collaborator. Get reports whether the
// key was present.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ModelService generates the model's reply for one turn.
type ModelService interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
