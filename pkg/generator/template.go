package generator

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Built-in template names.
const (
	TemplateVaultAnalysis = "vault_analysis"
	TemplateGapDetection  = "gap_detection"
	TemplateCommandCenter = "command_center"
)

// DefaultHighConfidence is the confidence at which a field must cite a source.
const DefaultHighConfidence = 80.0

//go:embed schemas/*.json
var schemaFS embed.FS

// Template is the prompt side of an agent.
type Template struct {
	Name         string
	SystemPrompt string
	Task         string
	// Schema is the JSON Schema (draft 2020-12) every output must satisfy.
	Schema string
}

// Policy validates generated output.
type Policy struct {
	schema               *jsonschema.Schema
	RequireSourceMapping bool
	HighConfidence       float64
}

// CompilePolicy compiles the template's schema.
func CompilePolicy(tpl Template) (*Policy, error) {
	p := &Policy{RequireSourceMapping: true, HighConfidence: DefaultHighConfidence}
	if strings.TrimSpace(tpl.Schema) == "" {
		return p, nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://bravvo.schemas.local/generator/%s.schema.json", tpl.Name)
	if err := c.AddResource(schemaURL, strings.NewReader(tpl.Schema)); err != nil {
		return nil, fmt.Errorf("generator: load schema %s: %w", tpl.Name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("generator: compile schema %s: %w", tpl.Name, err)
	}
	p.schema = compiled
	return p, nil
}

// Validate checks a JSON-decoded value against the schema.
func (p *Policy) Validate(v any) error {
	if p.schema == nil {
		return nil
	}
	return p.schema.Validate(v)
}

var builtinPrompts = map[string]struct{ system, task string }{
	TemplateVaultAnalysis: {
		system: "You are a business strategist. Analyze one vault of structured business input. Answer with a single JSON object. Cite the input field behind every claim in source_mapping.",
		task:   "Summarize the vault, score its completeness and quality from 0 to 100 and list strengths and weaknesses.",
	},
	TemplateGapDetection: {
		system: "You are a planning auditor. Find missing, inconsistent or ambiguous data across the analyzed vaults. Answer with a single JSON object.",
		task:   "List gaps with severidade critical, high, medium or low and the question that would resolve each one.",
	},
	TemplateCommandCenter: {
		system: "You are an operations planner. Turn the analyzed vaults into an operating plan. Answer with a single JSON object. Cite the vault behind every KPI and roadmap item in source_mapping.",
		task:   "Produce KPIs with numeric targets, a dated roadmap, a content calendar and a validation checklist.",
	},
}

// Builtin returns a built-in template by name.
func Builtin(name string) (Template, error) {
	prompt, ok := builtinPrompts[name]
	if !ok {
		return Template{}, fmt.Errorf("generator: unknown template %q", name)
	}
	schema, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return Template{}, fmt.Errorf("generator: read schema %s: %w", name, err)
	}
	return Template{Name: name, SystemPrompt: prompt.system, Task: prompt.task, Schema: string(schema)}, nil
}

// BuiltinNames lists the built-in templates.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinPrompts))
	for name := range builtinPrompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
