package generator

import (
	"context"
	"fmt"
	"sync"
)

// FixtureGenerator serves canned outputs by template name. Queued outputs are
// consumed in order; the last one is repeated once the queue is drained.
type FixtureGenerator struct {
	mu      sync.Mutex
	outputs map[string][]map[string]any
	errs    map[string]error
	calls   []Request
}

// NewFixtureGenerator returns an empty fixture set.
func NewFixtureGenerator() *FixtureGenerator {
	return &FixtureGenerator{
		outputs: make(map[string][]map[string]any),
		errs:    make(map[string]error),
	}
}

// Set queues one or more outputs for a template, clearing any failure.
func (f *FixtureGenerator) Set(template string, data ...map[string]any) *FixtureGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[template] = append(f.outputs[template], data...)
	delete(f.errs, template)
	return f
}

// Fail makes every call for template return err.
func (f *FixtureGenerator) Fail(template string, err error) *FixtureGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[template] = err
	return f
}

// Calls returns the requests received so far.
func (f *FixtureGenerator) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *FixtureGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if err := f.errs[req.Template]; err != nil {
		return nil, err
	}
	queue := f.outputs[req.Template]
	if len(queue) == 0 {
		return nil, fmt.Errorf("fixture: no output for template %q", req.Template)
	}
	data := queue[0]
	if len(queue) > 1 {
		f.outputs[req.Template] = queue[1:]
	}
	return OutputFromData(deepCopy(data).(map[string]any)), nil
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
