package models

import "time"

// RunSummary aggregates the counts of a finished run
type RunSummary struct {
	PartitionsAttempted     int     `json:"partitions_attempted"`
	PartitionsSucceeded     int     `json:"partitions_succeeded"`
	PartitionsRecovered     int     `json:"partitions_recovered"`
	PartitionsUnrecoverable int     `json:"partitions_unrecoverable"`
	PrimaryRecords          int     `json:"primary_records"`
	RecoveryRecords         int     `json:"recovery_records"`
	TotalRecords            int     `json:"total_records"`
	DuplicatesRemoved       int     `json:"duplicates_removed"`
	Superseded              int     `json:"superseded"`
	ExpectedRecords         int     `json:"expected_records"`
	CompletenessPercent     float64 `json:"completeness_percent"`
}

// UnrecoverablePartition is a partition still flagged after recovery
type UnrecoverablePartition struct {
	Partition    Partition     `json:"partition"`
	Status       OutcomeStatus `json:"status"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	MissingPages []int         `json:"missing_pages,omitempty"`
}

// ExportResult records where an exporter wrote the run
type ExportResult struct {
	Format   string `json:"format"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the final artifact of a run
type RunResult struct {
	RunID         string                   `json:"run_id"`
	Regime        Regime                   `json:"regime"`
	Records       []Record                 `json:"-"`
	Summary       RunSummary               `json:"summary"`
	Unrecoverable []UnrecoverablePartition `json:"unrecoverable"`
	Outcomes      []PartitionOutcome       `json:"outcomes"`
	Exports       []ExportResult           `json:"exports,omitempty"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
}

// Duration returns the wall time of the run
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
