package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

type weightsReport struct {
	Current         weights.Weights            `json:"current"`
	Presets         map[string]weights.Weights `json:"presets"`
	RangeViolations []string                   `json:"range_violations,omitempty"`
	Recommendation  *weights.Recommendation    `json:"recommendation,omitempty"`
}

// runWeightsCmd implements `bravvo weights`: the profile's coefficients,
// its presets and, with --signals, the recommendation they yield.
func runWeightsCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("weights", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		signalsPath string
		preset      string
		threshold   float64
	)
	cmd.StringVar(&profilePath, "profile", cfg.ProfilePath, "Planning profile YAML")
	cmd.StringVar(&signalsPath, "signals", "", "YAML or JSON list of signals to fuse")
	cmd.StringVar(&preset, "preset", "", "Apply a preset before fusing")
	cmd.Float64Var(&threshold, "threshold", weights.DefaultThreshold, "Recommendation threshold")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	m, err := weights.New(profile.Weights, weights.WithPresets(profile.Presets))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if preset != "" {
		if _, err := m.ApplyPreset(preset); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	report := weightsReport{Current: m.Current(), Presets: make(map[string]weights.Weights)}
	for _, name := range m.Presets() {
		w, _ := m.Preset(name)
		report.Presets[name] = w
	}
	for _, v := range m.RangeViolations() {
		report.RangeViolations = append(report.RangeViolations, v.String())
	}

	if signalsPath != "" {
		raw, err := os.ReadFile(signalsPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read signals: %v\n", err)
			return 2
		}
		var signals []weights.Signal
		if err := yaml.Unmarshal(raw, &signals); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: parse signals: %v\n", err)
			return 2
		}
		rec, err := m.GenerateRecommendation(signals, threshold)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		report.Recommendation = &rec
	}
	return writeJSON(stdout, stderr, report)
}

// runScheduleCmd implements `bravvo schedule`: the governance window that
// follows a cycle closing on --period-end.
func runScheduleCmd(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("schedule", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		periodEnd   string
		frequency   string
	)
	cmd.StringVar(&profilePath, "profile", cfg.ProfilePath, "Planning profile YAML")
	cmd.StringVar(&periodEnd, "period-end", "", "Last day of the closing cycle, YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&frequency, "frequency", "", "daily, weekly or monthly (default: profile)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if periodEnd == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --period-end is required")
		return 2
	}

	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if frequency != "" {
		profile.Governance.Frequency = frequency
	}
	freq, err := profile.Frequency()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	rule, err := profile.CalendarRule()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	rec := planning.GovernanceRecord{Signature: planning.Signature{PeriodEnd: planning.Date(periodEnd)}}
	window, err := governance.NextWindow(rec, freq, rule)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return writeJSON(stdout, stderr, window)
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: write output: %v\n", err)
		return 2
	}
	return 0
}
