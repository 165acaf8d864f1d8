package pipeline

import (
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

// LogSink writes progress events to a logrus logger
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink that logs every event
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event. Heartbeats go to debug so long runs stay readable.
func (s *LogSink) Publish(event models.ProgressEvent) {
	entry := s.logger.WithFields(logrus.Fields{
		"phase":   event.Phase,
		"done":    event.PartitionsDone,
		"total":   event.PartitionsTotal,
		"records": event.RecordsSoFar,
		"elapsed": event.Elapsed.Round(time.Second).String(),
	})

	switch event.Kind {
	case models.ProgressHeartbeat:
		entry.WithFields(logrus.Fields{
			"partition_id": event.CurrentPartition,
			"range":        event.Range,
			"page":         event.Page,
		}).Debug("Progress")
	case models.ProgressPartition:
		entry.WithFields(logrus.Fields{
			"partition_id": event.CurrentPartition,
			"status":       event.Status,
		}).Info("Partition finished")
	default:
		entry.Info("Phase started")
	}
}

// MultiSink fans events out to several sinks
type MultiSink []ProgressSink

// Publish forwards the event to every non-nil sink
func (m MultiSink) Publish(event models.ProgressEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(event)
		}
	}
}

// FuncSink adapts a function to ProgressSink
type FuncSink func(models.ProgressEvent)

// Publish calls f
func (f FuncSink) Publish(event models.ProgressEvent) {
	f(event)
}
