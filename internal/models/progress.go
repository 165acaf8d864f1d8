package models

import "time"

// ProgressKind tells what triggered a progress event
type ProgressKind string

const (
	ProgressPhase     ProgressKind = "phase"
	ProgressPartition ProgressKind = "partition"
	ProgressHeartbeat ProgressKind = "heartbeat"
)

// Run phases
const (
	PhaseListing    = "listing"
	PhaseExtraction = "extraction"
	PhaseGaps       = "gap_detection"
	PhaseRecovery   = "recovery"
	PhaseFinalize   = "finalize"
	PhaseExport     = "export"
)

// ProgressEvent is published to progress sinks during a run
type ProgressEvent struct {
	Kind             ProgressKind  `json:"kind"`
	Phase            string        `json:"phase"`
	Pass             Pass          `json:"pass,omitempty"`
	PartitionsDone   int           `json:"partitions_done"`
	PartitionsTotal  int           `json:"partitions_total"`
	RecordsSoFar     int           `json:"records_so_far"`
	CurrentPartition int           `json:"current_partition,omitempty"`
	Range            string        `json:"range,omitempty"`
	Page             int           `json:"page,omitempty"`
	Status           OutcomeStatus `json:"status,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
	Timestamp        time.Time     `json:"timestamp"`
}
