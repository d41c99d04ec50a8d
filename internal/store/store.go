// Package store provides the key-value storage behind the session cache:
// a durable SQLite-backed store (survives restarts) and a process-scoped
// in-memory store (lives as long as one session).
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// KV is a string key-value store.
type KV interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key with the given prefix.
	Clear(ctx context.Context, prefix string) error
}

// GetJSON decodes a JSON value; ok is false when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, out any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, eris.Wrapf(err, "store: decode %s", key)
	}
	return true, nil
}

// SetJSON encodes value as JSON under key.
func SetJSON(ctx context.Context, kv KV, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s", key)
	}
	return kv.Set(ctx, key, string(b))
}
