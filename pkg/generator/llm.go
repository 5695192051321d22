package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/llm"
)

// LLMGenerator asks a chat model for a JSON object. Calls are throttled by a
// token bucket shared across every agent using the generator.
type LLMGenerator struct {
	client   llm.Client
	limiter  *rate.Limiter
	sampling llm.SamplingOptions
}

// LLMOption customizes an LLMGenerator.
type LLMOption func(*LLMGenerator)

// WithRateLimit bounds calls per second with the given burst.
func WithRateLimit(rps float64, burst int) LLMOption {
	return func(g *LLMGenerator) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(g *LLMGenerator) {
		g.sampling.Temperature = t
	}
}

// NewLLMGenerator wraps client. Without WithRateLimit calls are unthrottled.
func NewLLMGenerator(client llm.Client, opts ...LLMOption) *LLMGenerator {
	g := &LLMGenerator{
		client:   client,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		sampling: llm.SamplingOptions{Temperature: 0.2, JSONMode: true},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate waits for a rate token, calls the model and parses its JSON answer.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("generator: rate limit: %w", err)
	}
	input, err := json.MarshalIndent(req.Input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("generator: encode input: %w", err)
	}
	msgs := []llm.Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.Task + "\n\nInput:\n" + string(input)},
	}
	sampling := g.sampling
	resp, err := g.client.Chat(ctx, msgs, nil, &sampling)
	if err != nil {
		return nil, fmt.Errorf("generator: %s: %w", req.Template, err)
	}
	data, err := parseJSONObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("generator: %s: %w", req.Template, err)
	}
	return OutputFromData(data), nil
}

// parseJSONObject accepts a bare object or one wrapped in a Markdown code fence.
func parseJSONObject(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, fmt.Errorf("model answer is not a JSON object: %w", err)
	}
	return out, nil
}
