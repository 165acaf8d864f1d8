package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexconsult/precatorios/internal/models"
)

var (
	// ErrNoPartitions aborts a run that has nothing to extract
	ErrNoPartitions = errors.New("no partitions to extract")
	// ErrRendererUnavailable aborts a run when no browser can be started at all
	ErrRendererUnavailable = errors.New("page renderer unavailable")
)

// Navigation tells the renderer how to reach the requested page
type Navigation int

const (
	// NavigateStep advances one page with the "next" control. With FirstInRange
	// set, the renderer loads the partition listing at page 1 instead.
	NavigateStep Navigation = iota
	// NavigateJump types the page number into the pager input
	NavigateJump
)

func (n Navigation) String() string {
	if n == NavigateJump {
		return "jump"
	}
	return "step"
}

// RenderRequest asks a renderer for one page of a partition
type RenderRequest struct {
	PartitionID  int
	Page         int
	FirstInRange bool
	Navigation   Navigation
	FieldSet     models.FieldSet
}

// RenderResult holds the rows visible on a rendered page
type RenderResult struct {
	Rows    []models.RawRow
	HasNext bool
}

// RenderErrorKind classifies renderer failures
type RenderErrorKind string

const (
	RenderTimeout    RenderErrorKind = "timeout"
	RenderNavigation RenderErrorKind = "navigation"
	RenderJump       RenderErrorKind = "jump"
	RenderParse      RenderErrorKind = "parse"
	RenderSession    RenderErrorKind = "session"
)

// RenderError is returned by renderers for page-level failures
type RenderError struct {
	Kind      RenderErrorKind
	Retryable bool
	Page      int
	Err       error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("render page %d: %s", e.Page, e.Kind)
	}
	return fmt.Sprintf("render page %d: %s: %v", e.Page, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PageRenderer renders pages of one partition in one browser context.
// Render must be idempotent for a request: when the session already shows
// req.Page it returns that page's rows without navigating again.
type PageRenderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
	Close() error
}

// RendererFactory acquires a dedicated renderer for a worker
type RendererFactory interface {
	NewRenderer(ctx context.Context, partition models.Partition) (PageRenderer, error)
}

// PartitionLister discovers the partitions of a regime
type PartitionLister interface {
	ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error)
}

// ProgressSink receives progress events. Implementations must be safe for
// concurrent use since range workers publish heartbeats in parallel.
type ProgressSink interface {
	Publish(event models.ProgressEvent)
}

// Exporter writes a finished run somewhere and returns its location
type Exporter interface {
	Name() string
	Export(ctx context.Context, result *models.RunResult) (string, error)
}

// OutcomeJournal persists partition outcomes as they are produced
type OutcomeJournal interface {
	OutcomeReader
	Append(ctx context.Context, runID string, outcome models.PartitionOutcome) error
}

// OutcomeReader reads back the outcomes journaled for a run
type OutcomeReader interface {
	Load(ctx context.Context, runID string) ([]models.PartitionOutcome, error)
}
