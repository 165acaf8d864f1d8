package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OutcomeJournal appends partition outcomes to a Redis list per run. When
// Redis is unavailable, or a write fails, outcomes are kept in memory.
type OutcomeJournal struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger

	mu     sync.RWMutex
	memory map[string][]models.PartitionOutcome
}

// NewOutcomeJournal creates a journal. client may be nil.
func NewOutcomeJournal(client *redis.Client, prefix string, ttl time.Duration, logger *logrus.Logger) *OutcomeJournal {
	return &OutcomeJournal{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		memory: make(map[string][]models.PartitionOutcome),
	}
}

func (j *OutcomeJournal) key(runID string) string {
	return fmt.Sprintf("%s:run:%s:outcomes", j.prefix, runID)
}

// Append records outcome as the latest entry of runID
func (j *OutcomeJournal) Append(ctx context.Context, runID string, outcome models.PartitionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	if j.client != nil {
		key := j.key(runID)
		pipe := j.client.TxPipeline()
		pipe.RPush(ctx, key, data)
		if j.ttl > 0 {
			pipe.Expire(ctx, key, j.ttl)
		}
		_, err := pipe.Exec(ctx)
		if err == nil {
			return nil
		}
		j.logger.WithError(err).WithFields(logrus.Fields{
			"run_id":       runID,
			"partition_id": outcome.PartitionID,
		}).Warn("Redis journal write failed, keeping outcome in memory")
	}

	j.mu.Lock()
	j.memory[runID] = append(j.memory[runID], outcome)
	j.mu.Unlock()
	return nil
}

// Load returns every outcome of runID ordered by start time, so that the
// latest attempt of a partition comes last even when Redis dropped out for
// part of the run and some outcomes only reached memory. Outcomes with equal
// start times keep append order.
func (j *OutcomeJournal) Load(ctx context.Context, runID string) ([]models.PartitionOutcome, error) {
	var outcomes []models.PartitionOutcome

	if j.client != nil {
		entries, err := j.client.LRange(ctx, j.key(runID), 0, -1).Result()
		if err != nil {
			j.logger.WithError(err).WithField("run_id", runID).Warn("Redis journal read failed, using memory only")
		}
		for i, entry := range entries {
			var outcome models.PartitionOutcome
			if err := json.Unmarshal([]byte(entry), &outcome); err != nil {
				return nil, fmt.Errorf("decode journal entry %d of run %s: %w", i, runID, err)
			}
			outcomes = append(outcomes, outcome)
		}
	}

	j.mu.RLock()
	outcomes = append(outcomes, j.memory[runID]...)
	j.mu.RUnlock()

	sort.SliceStable(outcomes, func(a, b int) bool {
		return outcomes[a].StartedAt.Before(outcomes[b].StartedAt)
	})
	return outcomes, nil
}

// Health returns journal health status
func (j *OutcomeJournal) Health() map[string]interface{} {
	j.mu.RLock()
	runs := len(j.memory)
	j.mu.RUnlock()

	backend := "memory"
	if j.client != nil {
		backend = "redis"
	}
	return map[string]interface{}{
		"status":      "healthy",
		"backend":     backend,
		"memory_runs": runs,
	}
}
