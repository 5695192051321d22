// Package eventlog is the append-only, ordered, queryable store of immutable
// workflow events plus a last-write-wins snapshot cache keyed by aggregate id.
//
// Every event carries causal metadata: the correlation id groups all events
// of one workflow run and the causation id points at the event that directly
// triggered it. FindByCorrelation therefore reconstructs the full causal chain
// of a run, which is how stuck workflows are diagnosed.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidEvent       = errors.New("invalid event")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrUnsupportedBackend = errors.New("unsupported event store backend")
	ErrWorkspaceMismatch  = errors.New("event belongs to another workspace")
)

// Metadata carries the causal and session context of an event.
type Metadata struct {
	CorrelationID string `json:"correlation_id"`
	// CausationID is the EventID of the directly triggering event; empty for a root event.
	CausationID string `json:"causation_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	// WorkspaceID scopes the event to one tenant when several share a log.
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Event is a single immutable entry of the log.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  Metadata       `json:"metadata"`

	// Assigned by the log on append.
	SequenceNumber uint64    `json:"sequence_number"`
	StoredAt       time.Time `json:"stored_at"`
	EntityType     string    `json:"entity_type,omitempty"`
	EntityID       string    `json:"entity_id,omitempty"`
}

// IsRoot reports whether the event was not caused by another event.
func (e Event) IsRoot() bool {
	return e.Metadata.CausationID == ""
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("eventlog: encode payload of %s: %w", e.EventType, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("eventlog: decode payload of %s: %w", e.EventType, err)
	}
	return nil
}

func (e Event) validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if e.EventType == "" {
		return fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	}
	if e.Metadata.CorrelationID == "" {
		return fmt.Errorf("%w: correlation_id is required", ErrInvalidEvent)
	}
	return nil
}

// stampWorkspace scopes the event to workspace, refusing events already
// stamped with a different one. An empty workspace leaves the event as is.
func stampWorkspace(e *Event, workspace string) error {
	if workspace == "" {
		return nil
	}
	switch e.Metadata.WorkspaceID {
	case "":
		e.Metadata.WorkspaceID = workspace
	case workspace:
	default:
		return fmt.Errorf("%w: %s is scoped to %q, not %q", ErrWorkspaceMismatch, e.EventID, e.Metadata.WorkspaceID, workspace)
	}
	return nil
}

// visible reports whether a view restricted to workspace sees e. The
// unrestricted view ("") sees everything.
func visible(e Event, workspace string) bool {
	return workspace == "" || e.Metadata.WorkspaceID == workspace
}

// entityKeys maps well-known payload id keys to the entity type they identify,
// in lookup precedence order.
var entityKeys = []struct {
	key        string
	entityType string
}{
	{"vault_id", "vault"},
	{"command_center_id", "command_center"},
	{"cycle_id", "governance_cycle"},
	{"plan_id", "recalibration"},
}

// entityRef extracts the entity an event refers to from its payload.
// Explicit entity_type/entity_id keys win over the well-known id keys.
func entityRef(payload map[string]any) (string, string) {
	if t, ok := payload["entity_type"].(string); ok && t != "" {
		if id, ok := payload["entity_id"].(string); ok && id != "" {
			return t, id
		}
	}
	for _, k := range entityKeys {
		if id, ok := payload[k.key].(string); ok && id != "" {
			return k.entityType, id
		}
	}
	return "", ""
}

// normalizePayload round-trips the payload through JSON so that every backend
// stores and returns the same shapes (numbers as float64, structs as maps).
func normalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not serializable: %v", ErrInvalidEvent, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object: %v", ErrInvalidEvent, err)
	}
	return out, nil
}

// clone returns a deep copy so callers can never mutate stored events.
func (e Event) clone() Event {
	e.Payload = deepCopy(e.Payload).(map[string]any)
	return e
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
