package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Result is the tagged outcome of one agent run. A failed run carries the
// execution id and timestamp so it can be traced in the event log.
type Result struct {
	Success     bool      `json:"success"`
	Template    string    `json:"template"`
	Output      *Output   `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// AgentOption customizes an Agent.
type AgentOption func(*Agent)

// WithPolicy overrides the policy compiled from the template.
func WithPolicy(p *Policy) AgentOption {
	return func(a *Agent) {
		if p != nil {
			a.policy = p
		}
	}
}

// WithAgentLogger sets the agent logger.
func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAgentClock overrides the result timestamp source.
func WithAgentClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// Agent composes a generator with a template and a policy.
type Agent struct {
	generator Generator
	template  Template
	policy    *Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewAgent compiles the template policy and returns an agent.
func NewAgent(gen Generator, tpl Template, opts ...AgentOption) (*Agent, error) {
	if gen == nil {
		return nil, errors.New("generator: nil generator")
	}
	policy, err := CompilePolicy(tpl)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		generator: gen,
		template:  tpl,
		policy:    policy,
		logger:    slog.Default().With("component", "agent", "template", tpl.Name),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Template returns the agent template.
func (a *Agent) Template() Template {
	return a.template
}

// Run generates and validates output for input. It never panics: generator
// errors, panics and schema violations become a failed Result.
func (a *Agent) Run(ctx context.Context, input map[string]any) (res Result) {
	res = Result{
		Template:    a.template.Name,
		ExecutionID: uuid.NewString(),
		Timestamp:   a.now(),
	}
	defer func() {
		if r := recover(); r != nil {
			res = a.fail(ctx, res, fmt.Errorf("generator panic: %v", r))
		}
	}()

	out, err := a.generator.Generate(ctx, Request{
		Template:    a.template.Name,
		System:      a.template.SystemPrompt,
		Task:        a.template.Task,
		Input:       input,
		ExecutionID: res.ExecutionID,
	})
	if err != nil {
		return a.fail(ctx, res, err)
	}
	if out == nil || out.Data == nil {
		return a.fail(ctx, res, errors.New("generator returned no output"))
	}

	data, err := normalize(out.Data)
	if err != nil {
		return a.fail(ctx, res, fmt.Errorf("output is not JSON: %w", err))
	}
	if err := a.policy.Validate(data); err != nil {
		return a.fail(ctx, res, fmt.Errorf("output violates %s schema: %w", a.template.Name, err))
	}

	normalized := &Output{Data: data, SourceMapping: out.SourceMapping, Confidence: out.Confidence}
	if normalized.SourceMapping == nil && normalized.Confidence == nil {
		normalized = OutputFromData(data)
	}
	res.Success = true
	res.Output = normalized
	res.Warnings = a.qualityWarnings(normalized)
	for _, w := range res.Warnings {
		a.logger.WarnContext(ctx, "output quality warning", "execution_id", res.ExecutionID, "warning", w)
	}
	return res
}

func (a *Agent) fail(ctx context.Context, res Result, err error) Result {
	a.logger.ErrorContext(ctx, "generation failed", "execution_id", res.ExecutionID, "error", err)
	res.Success = false
	res.Output = nil
	res.Err = err
	res.Error = err.Error()
	return res
}

// qualityWarnings flags missing source mapping and confident fields without evidence.
func (a *Agent) qualityWarnings(out *Output) []string {
	var warnings []string
	if a.policy.RequireSourceMapping && len(out.SourceMapping) == 0 {
		warnings = append(warnings, "output has no source_mapping")
	}
	fields := make([]string, 0, len(out.Confidence))
	for f := range out.Confidence {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		c := out.Confidence[f]
		if c < 0 || c > 100 {
			warnings = append(warnings, fmt.Sprintf("field %q has confidence %.1f outside [0,100]", f, c))
			continue
		}
		if c >= a.policy.HighConfidence && out.SourceMapping[f] == "" {
			warnings = append(warnings, fmt.Sprintf("field %q has confidence %.0f but no source", f, c))
		}
	}
	return warnings
}

// normalize round-trips v through JSON so the schema validator sees plain JSON values.
func normalize(v map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
