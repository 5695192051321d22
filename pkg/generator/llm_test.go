package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/llm"
)

type stubClient struct {
	content string
	err     error
	got     []llm.Message
	opts    *llm.SamplingOptions
}

func (s *stubClient) Chat(_ context.Context, msgs []llm.Message, _ []llm.ToolDefinition, opts *llm.SamplingOptions) (*llm.Response, error) {
	s.got = msgs
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func TestLLMGenerator_Generate(t *testing.T) {
	client := &stubClient{content: "```json\n{\"summary\":\"ok\",\"score\":70,\"source_mapping\":{\"summary\":\"offer.price\"}}\n```"}
	gen := NewLLMGenerator(client, WithRateLimit(100, 1))

	out, err := gen.Generate(context.Background(), Request{
		Template: TemplateVaultAnalysis,
		System:   "sys",
		Task:     "task",
		Input:    map[string]any{"price": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Data["summary"])
	assert.Equal(t, "offer.price", out.SourceMapping["summary"])

	require.Len(t, client.got, 2)
	assert.Equal(t, "system", client.got[0].Role)
	assert.Contains(t, client.got[1].Content, `"price": 10`)
	assert.True(t, client.opts.JSONMode)
}

func TestLLMGenerator_Errors(t *testing.T) {
	_, err := NewLLMGenerator(&stubClient{err: errors.New("timeout")}).Generate(context.Background(), Request{Template: "x"})
	assert.ErrorContains(t, err, "timeout")

	_, err = NewLLMGenerator(&stubClient{content: "I cannot help"}).Generate(context.Background(), Request{Template: "x"})
	assert.ErrorContains(t, err, "not a JSON object")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLLMGenerator(&stubClient{content: "{}"}, WithRateLimit(0.001, 1)).Generate(ctx, Request{Template: "x"})
	assert.ErrorContains(t, err, "rate limit")
}
