package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

const readinessCostLimit = 10000

// Readiness is a compiled CEL rule over a gap report. The rule sees
// health_score (double), critical_count, gap_count and analyzed_vaults (int)
// and must yield a bool.
type Readiness struct {
	expr    string
	program cel.Program
}

// NewReadiness compiles expr. An empty expression selects the default rule.
func NewReadiness(expr string) (*Readiness, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = config.DefaultReadinessRule
	}
	env, err := cel.NewEnv(
		cel.Variable("health_score", cel.DoubleType),
		cel.Variable("critical_count", cel.IntType),
		cel.Variable("gap_count", cel.IntType),
		cel.Variable("analyzed_vaults", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("readiness: cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("readiness: compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("readiness: rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast,
		cel.CostLimit(readinessCostLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("readiness: program %q: %w", expr, err)
	}
	return &Readiness{expr: expr, program: prg}, nil
}

// Rule returns the source expression.
func (r *Readiness) Rule() string { return r.expr }

// Evaluate applies the rule to a report.
func (r *Readiness) Evaluate(report planning.GapReport) (bool, error) {
	out, _, err := r.program.Eval(map[string]any{
		"health_score":    report.HealthScore,
		"critical_count":  int64(report.CriticalCount),
		"gap_count":       int64(len(report.Gaps)),
		"analyzed_vaults": int64(len(report.AnalyzedVaults)),
	})
	if err != nil {
		return false, fmt.Errorf("readiness: eval %q: %w", r.expr, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("readiness: rule %q returned %T", r.expr, out.Value())
	}
	return ok, nil
}
