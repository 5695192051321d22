package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/canonicalize"
)

// Kinds of archived artifacts.
const (
	KindCommandCenter    = "command_center"
	KindGovernanceRecord = "governance_record"
)

// envelope wraps an archived value with its kind so a blob is self-describing.
type envelope struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// Archive stores typed values as canonical JSON in a Store.
type Archive struct {
	store  Store
	logger *slog.Logger
}

// NewArchive wraps store. A nil store selects an in-memory store.
func NewArchive(store Store) *Archive {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Archive{
		store:  store,
		logger: slog.Default().With("component", "artifacts"),
	}
}

// Store returns the underlying blob store.
func (a *Archive) Store() Store { return a.store }

// Put canonicalizes v under kind and returns its reference. Equal values
// always produce the same reference.
func (a *Archive) Put(ctx context.Context, kind string, v any) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("archive: kind is required")
	}
	value, err := canonicalize.JCS(v)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", kind, err)
	}
	data, err := canonicalize.JCS(envelope{Kind: kind, Value: value})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", kind, err)
	}
	ref, err := a.store.Store(ctx, data)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", kind, err)
	}
	a.logger.DebugContext(ctx, "artifact archived", "kind", kind, "ref", ref, "bytes", len(data))
	return ref, nil
}

// Load decodes the archived value at ref into out and returns its kind.
func (a *Archive) Load(ctx context.Context, ref string, out any) (string, error) {
	data, err := a.store.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode archive %s: %w", ref, err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Value, out); err != nil {
			return env.Kind, fmt.Errorf("decode archive %s value: %w", ref, err)
		}
	}
	return env.Kind, nil
}
