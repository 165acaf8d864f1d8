package models

import "time"

// Pass identifies which extraction pass produced an outcome
type Pass string

const (
	PassPrimary  Pass = "primary"
	PassRecovery Pass = "recovery"
)

// OutcomeStatus classifies a partition attempt
type OutcomeStatus string

const (
	StatusSuccess        OutcomeStatus = "success"
	StatusZeroYield      OutcomeStatus = "zero_yield"
	StatusPartialFailure OutcomeStatus = "partial_failure"
	StatusFatalError     OutcomeStatus = "fatal_error"
	// StatusNotAttempted is only produced by gap detection for partitions
	// missing from the outcome evidence (interrupted runs).
	StatusNotAttempted OutcomeStatus = "not_attempted"
)

// NeedsRecovery reports whether the status is a gap
func (s OutcomeStatus) NeedsRecovery() bool {
	return s != StatusSuccess
}

// PartitionOutcome is the result of one partition in one pass
type PartitionOutcome struct {
	PartitionID      int    `json:"partition_id"`
	PartitionName    string `json:"partition_name"`
	Pass             Pass   `json:"pass"`
	ExpectedRecords  int    `json:"expected_records"`
	RecordsExtracted int    `json:"records_extracted"`
	PagesPlanned     int    `json:"pages_planned"`
	PagesAttempted   int    `json:"pages_attempted"`
	PagesFailed      int    `json:"pages_failed"`
	// FailedPages lists the page numbers behind PagesFailed, ascending
	FailedPages []int `json:"failed_pages,omitempty"`
	// FilledPages is set on recovery outcomes that re-rendered only these
	// pages of an earlier attempt instead of the whole partition
	FilledPages  []int         `json:"filled_pages,omitempty"`
	RowsSkipped  int           `json:"rows_skipped"`
	Workers      int           `json:"workers"`
	WorkersFatal int           `json:"workers_fatal"`
	Status       OutcomeStatus `json:"status"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// PageFill reports whether the outcome patched an earlier attempt page by page
func (o PartitionOutcome) PageFill() bool {
	return len(o.FilledPages) > 0
}
