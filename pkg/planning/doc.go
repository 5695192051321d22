// Package planning defines the domain model shared by the orchestrator and
// the governance engine: vaults and their analyses, gaps, the command center,
// governance records, recalibration plans and scheduling windows.
package planning
