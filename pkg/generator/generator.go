// Package generator is the boundary to content-producing collaborators. A
// Generator turns a prompt and structured input into structured output; an
// Agent composes a Generator with a Template and a validation Policy and
// converts every failure into a tagged Result.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request is one generation call.
type Request struct {
	Template    string         `json:"template"`
	System      string         `json:"system"`
	Task        string         `json:"task"`
	Input       map[string]any `json:"input"`
	ExecutionID string         `json:"execution_id"`
}

// Output is the structured result of a generation.
type Output struct {
	Data map[string]any `json:"data"`
	// SourceMapping maps output fields to the input they were derived from.
	SourceMapping map[string]string `json:"source_mapping,omitempty"`
	// Confidence maps inferred fields to a score in [0,100].
	Confidence map[string]float64 `json:"confidence,omitempty"`
}

// Decode unmarshals Data into dst.
func (o *Output) Decode(dst any) error {
	raw, err := json.Marshal(o.Data)
	if err != nil {
		return fmt.Errorf("generator: encode output: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("generator: decode output: %w", err)
	}
	return nil
}

// Generator produces structured content.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Output, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (*Output, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Output, error) {
	return f(ctx, req)
}

// OutputFromData splits the reserved source_mapping and confidence keys out
// of a raw object.
func OutputFromData(data map[string]any) *Output {
	out := &Output{Data: data}
	if sm, ok := data["source_mapping"].(map[string]any); ok {
		out.SourceMapping = make(map[string]string, len(sm))
		for k, v := range sm {
			if s, ok := v.(string); ok {
				out.SourceMapping[k] = s
			}
		}
	}
	if conf, ok := data["confidence"].(map[string]any); ok {
		out.Confidence = make(map[string]float64, len(conf))
		for k, v := range conf {
			switch n := v.(type) {
			case float64:
				out.Confidence[k] = n
			case int:
				out.Confidence[k] = float64(n)
			case json.Number:
				if f, err := n.Float64(); err == nil {
					out.Confidence[k] = f
				}
			}
		}
	}
	return out
}
