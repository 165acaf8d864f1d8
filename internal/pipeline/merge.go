package pipeline

import (
	"sort"

	"github.com/nexconsult/precatorios/internal/models"
)

// MergeResult is the de-duplicated record set of a run
type MergeResult struct {
	Records    []models.Record
	InputCount int
	// Duplicates counts records dropped because their key was already kept
	Duplicates int
	// Superseded counts primary records of a recovered partition that the
	// recovery pass no longer listed
	Superseded int
}

// Merger combines primary and recovery records into the final set
type Merger struct{}

// NewMerger creates a merger
func NewMerger() *Merger {
	return &Merger{}
}

// Finalize de-duplicates by (partition, number), keeping the first
// occurrence with primary records ahead of recovery ones. For partitions in
// authoritative, whose recovery pass came back clean, the recovery records
// replace the primary ones entirely. The result is sorted and the inputs
// are left untouched.
func (m *Merger) Finalize(primary, recovery []models.Record, authoritative []int) MergeResult {
	result := MergeResult{InputCount: len(primary) + len(recovery)}

	replaced := make(map[int]bool, len(authoritative))
	for _, id := range authoritative {
		replaced[id] = true
	}

	recovered := make(map[models.RecordKey]bool)
	if len(replaced) > 0 {
		for _, r := range recovery {
			if replaced[r.PartitionID] {
				recovered[r.Key()] = true
			}
		}
	}

	seen := make(map[models.RecordKey]bool, result.InputCount)
	records := make([]models.Record, 0, result.InputCount)

	for _, r := range primary {
		key := r.Key()
		if replaced[r.PartitionID] {
			if recovered[key] {
				result.Duplicates++
			} else {
				result.Superseded++
			}
			continue
		}
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		records = append(records, r)
	}

	// Primary keys of replaced partitions were never marked seen, so the
	// recovery copies survive below.
	for _, r := range recovery {
		key := r.Key()
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.PartitionID != b.PartitionID {
			return a.PartitionID < b.PartitionID
		}
		if a.OrderNum != b.OrderNum {
			return a.OrderNum < b.OrderNum
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		if a.SourcePage != b.SourcePage {
			return a.SourcePage < b.SourcePage
		}
		return a.Position < b.Position
	})

	result.Records = records
	return result
}
