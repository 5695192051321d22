package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator semantic convention attributes.
var (
	AttrWorkspaceID   = attribute.Key("bravvo.workspace.id")
	AttrOperation     = attribute.Key("bravvo.operation")
	AttrEventType     = attribute.Key("bravvo.event.type")
	AttrCorrelationID = attribute.Key("bravvo.correlation.id")
	AttrVaultID       = attribute.Key("bravvo.vault.id")
	AttrTemplate      = attribute.Key("bravvo.generator.template")
)

// WorkspaceOperation creates attributes for one orchestrator call.
func WorkspaceOperation(workspaceID, correlationID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrWorkspaceID.String(workspaceID)}
	if correlationID != "" {
		attrs = append(attrs, AttrCorrelationID.String(correlationID))
	}
	return attrs
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
