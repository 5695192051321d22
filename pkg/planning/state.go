package planning

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// SystemState is the aggregate owned by one orchestrator.
type SystemState struct {
	WorkspaceID            string                       `json:"workspace_id"`
	Vaults                 map[VaultID]Content          `json:"vaults"`
	VaultAnalyses          map[VaultID]Analysis         `json:"vault_analyses"`
	CalendarContext        *CalendarContext             `json:"calendar_context,omitempty"`
	CommandCenter          *CommandCenter               `json:"command_center,omitempty"`
	ArchivedCommandCenters []CommandCenter              `json:"archived_command_centers,omitempty"`
	GovernanceCycles       []GovernanceRecord           `json:"governance_cycles"`
	GovernanceSummaries    map[string]GovernanceSummary `json:"governance_summaries"`
	PendingRecalibration   *RecalibrationPlan           `json:"pending_recalibration,omitempty"`
	LastGapReport          *GapReport                   `json:"last_gap_report,omitempty"`
	Weights                weights.Weights              `json:"weights"`
	WeightsHistory         []weights.HistoryEntry       `json:"weights_history,omitempty"`
}

// NewSystemState returns an empty aggregate.
func NewSystemState(workspaceID string) *SystemState {
	return &SystemState{
		WorkspaceID:         workspaceID,
		Vaults:              make(map[VaultID]Content),
		VaultAnalyses:       make(map[VaultID]Analysis),
		GovernanceSummaries: make(map[string]GovernanceSummary),
	}
}

// Clone returns a deep copy. Every field of the aggregate is plain JSON data.
func (s *SystemState) Clone() (*SystemState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("planning: encode state: %w", err)
	}
	return DecodeState(raw)
}

// DecodeState restores an aggregate encoded with json.Marshal.
func DecodeState(raw []byte) (*SystemState, error) {
	out := NewSystemState("")
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("planning: decode state: %w", err)
	}
	if out.Vaults == nil {
		out.Vaults = make(map[VaultID]Content)
	}
	if out.VaultAnalyses == nil {
		out.VaultAnalyses = make(map[VaultID]Analysis)
	}
	if out.GovernanceSummaries == nil {
		out.GovernanceSummaries = make(map[string]GovernanceSummary)
	}
	return out, nil
}

// AddRecord appends rec, keeping GovernanceCycles ordered by period end so a
// late-filed earlier cycle lands in its place.
func (s *SystemState) AddRecord(rec GovernanceRecord) {
	s.GovernanceCycles = ByPeriodEnd(append(s.GovernanceCycles, rec))
}

// LatestRecord returns the governance record with the latest period end.
func (s *SystemState) LatestRecord() (GovernanceRecord, bool) {
	if len(s.GovernanceCycles) == 0 {
		return GovernanceRecord{}, false
	}
	ordered := ByPeriodEnd(s.GovernanceCycles)
	return ordered[len(ordered)-1], true
}

// ByPeriodEnd returns a copy of records ordered by period end. Records ending
// on the same day keep their relative order.
func ByPeriodEnd(records []GovernanceRecord) []GovernanceRecord {
	out := append([]GovernanceRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return periodEnd(out[i]).Before(periodEnd(out[j]))
	})
	return out
}

// periodEnd parses the record's period end; unparseable dates sort first.
func periodEnd(rec GovernanceRecord) time.Time {
	t, err := rec.Signature.PeriodEnd.Time()
	if err != nil {
		return time.Time{}
	}
	return t
}
