package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/workspace"
)

// script is a YAML workflow: canned generator outputs plus a list of steps.
type script struct {
	Workspace string                      `yaml:"workspace"`
	Fixtures  map[string][]map[string]any `yaml:"fixtures"`
	Steps     []step                      `yaml:"steps"`
}

type step struct {
	Op            string                     `yaml:"op"`
	CorrelationID string                     `yaml:"correlation_id,omitempty"`
	UserID        string                     `yaml:"user_id,omitempty"`
	Expect        workspace.Code             `yaml:"expect,omitempty"`
	Vault         string                     `yaml:"vault,omitempty"`
	Content       planning.Content           `yaml:"content,omitempty"`
	Approver      string                     `yaml:"approver,omitempty"`
	PlanID        string                     `yaml:"plan_id,omitempty"`
	Edit          planning.CommandCenterEdit `yaml:"edit,omitempty"`
	Cycle         governance.Submission      `yaml:"cycle,omitempty"`
	Weights       weights.Partial            `yaml:"weights,omitempty"`
	Reason        string                     `yaml:"reason,omitempty"`
	Preset        string                     `yaml:"preset,omitempty"`
	Calendar      planning.CalendarContext   `yaml:"calendar,omitempty"`
	Query         workspace.EventQuery       `yaml:"query,omitempty"`
}

// stepResult is one line of the run output.
type stepResult struct {
	Step     int                `json:"step"`
	Op       string             `json:"op"`
	Envelope workspace.Envelope `json:"envelope"`
	Expected bool               `json:"expected"`
}

func loadScript(path string) (*script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script %s has no steps", path)
	}
	return &s, nil
}

func (s *script) generator() *generator.FixtureGenerator {
	fx := generator.NewFixtureGenerator()
	names := make([]string, 0, len(s.Fixtures))
	for name := range s.Fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fx.Set(name, s.Fixtures[name]...)
	}
	return fx
}

// runScriptCmd implements `bravvo run`.
//
// Exit codes:
//
//	0 = every step met its expectation
//	1 = a step failed unexpectedly
//	2 = usage or setup error
func runScriptCmd(args []string, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		scriptPath  string
		workspaceID string
		profilePath string
		keepGoing   bool
	)
	cmd.StringVar(&scriptPath, "script", "", "Path to the YAML workflow script (REQUIRED)")
	cmd.StringVar(&workspaceID, "workspace", "", "Workspace id (overrides the script)")
	cmd.StringVar(&profilePath, "profile", cfg.ProfilePath, "Planning profile YAML")
	cmd.BoolVar(&keepGoing, "keep-going", false, "Continue after an unexpected failure")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if scriptPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --script is required")
		return 2
	}

	s, err := loadScript(scriptPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if workspaceID == "" {
		workspaceID = s.Workspace
	}
	if workspaceID == "" {
		workspaceID = "default"
	}
	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, profile, s.generator(), logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() {
		if err := rt.Close(ctx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	enc := json.NewEncoder(stdout)
	exit := 0
	var lastPlan string
	for i, st := range s.Steps {
		env := execute(ctx, rt.service, workspaceID, st, lastPlan)
		if plan, ok := env.Data.(planning.RecalibrationPlan); ok && env.Success {
			lastPlan = plan.ID
		}
		res := stepResult{Step: i + 1, Op: st.Op, Envelope: env, Expected: meets(env, st.Expect)}
		if err := enc.Encode(res); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write result: %v\n", err)
			return 2
		}
		if !res.Expected {
			exit = 1
			logger.Error("step did not meet expectation", "step", i+1, "op", st.Op, "expect", st.Expect)
			if !keepGoing {
				break
			}
		}
	}
	return exit
}

func meets(env workspace.Envelope, expect workspace.Code) bool {
	if expect == "" {
		return env.Success
	}
	return !env.Success && env.Error.Code == expect
}

// execute dispatches one step. apply_recalibration without plan_id applies
// the plan produced by the most recent recalibrate step.
func execute(ctx context.Context, svc *workspace.Service, ws string, st step, lastPlan string) workspace.Envelope {
	meta := eventlog.Metadata{CorrelationID: st.CorrelationID, UserID: st.UserID}
	switch st.Op {
	case "mark_vault_complete":
		return svc.MarkVaultComplete(ctx, ws, st.Vault, st.Content, meta)
	case "detect_gaps":
		return svc.DetectGaps(ctx, ws, meta)
	case "set_calendar_context":
		return svc.SetCalendarContext(ctx, ws, st.Calendar, meta)
	case "generate_command_center":
		return svc.GenerateCommandCenter(ctx, ws, meta)
	case "approve_command_center":
		return svc.ApproveCommandCenter(ctx, ws, st.Approver, meta)
	case "activate_command_center":
		return svc.ActivateCommandCenter(ctx, ws, meta)
	case "update_command_center":
		return svc.UpdateCommandCenter(ctx, ws, st.Edit, meta)
	case "complete_governance_cycle":
		return svc.CompleteGovernanceCycle(ctx, ws, st.Cycle, meta)
	case "recalibrate":
		return svc.Recalibrate(ctx, ws, meta)
	case "apply_recalibration":
		planID := st.PlanID
		if planID == "" {
			planID = lastPlan
		}
		return svc.ApplyRecalibration(ctx, ws, planID, st.Approver, meta)
	case "get_weights":
		return svc.GetWeights(ctx, ws)
	case "update_weights":
		return svc.UpdateWeights(ctx, ws, st.Weights, st.Reason, meta)
	case "apply_weights_preset":
		return svc.ApplyWeightsPreset(ctx, ws, st.Preset, meta)
	case "get_state":
		return svc.GetState(ctx, ws)
	case "get_events":
		return svc.GetEvents(ctx, ws, st.Query)
	case "get_event_stats":
		return svc.GetEventStats(ctx, ws)
	default:
		return workspace.Envelope{Error: &workspace.Error{
			Code:      workspace.CodeValidation,
			Message:   fmt.Sprintf("unknown op %q", st.Op),
			Timestamp: time.Now().UTC(),
		}}
	}
}
