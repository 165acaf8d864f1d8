package services

import (
	"context"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
)

// CacheServiceInterface defines the interface for cache service
type CacheServiceInterface interface {
	// Get retrieves a value, or ErrCacheMiss
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with the default TTL
	Set(ctx context.Context, key, value string) error

	// SetWithTTL stores a value with an explicit TTL
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// GetStats returns cache statistics
	GetStats() map[string]interface{}

	// Health returns cache service health status
	Health() map[string]interface{}
}

// BrowserServiceInterface defines the interface for browser service
type BrowserServiceInterface interface {
	pipeline.RendererFactory

	// GetStats returns browser statistics
	GetStats() map[string]interface{}

	// Health returns browser service health status
	Health() map[string]interface{}

	// Close stops handing out browsers
	Close() error
}

// RunManagerInterface is what the HTTP API needs from the run manager
type RunManagerInterface interface {
	Start(req pipeline.RunRequest) (RunState, error)
	Get(id string) (RunState, error)
	List() []RunState
	Active() (string, bool)
	Subscribe(id string) (<-chan models.ProgressEvent, func(), error)
}

// OutcomeStore reads persisted partition outcomes
type OutcomeStore interface {
	Load(ctx context.Context, runID string) ([]models.PartitionOutcome, error)
}
