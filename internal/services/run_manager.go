package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRunInProgress is returned when a run is started while another is active
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrRunNotFound is returned for unknown run IDs
	ErrRunNotFound = errors.New("run not found")
	// ErrNoExecutor is returned when the manager was never bound to a runner
	ErrNoExecutor = errors.New("run manager has no executor")
)

// RunStatus is the lifecycle state of a managed run
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunExecutor executes one run to completion
type RunExecutor interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*models.RunResult, error)
}

// RunState is a snapshot of a managed run
type RunState struct {
	ID         string                `json:"run_id"`
	Status     RunStatus             `json:"status"`
	Request    pipeline.RunRequest   `json:"request"`
	Progress   *models.ProgressEvent `json:"progress,omitempty"`
	Result     *models.RunResult     `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// RunManager runs one extraction at a time in the background and keeps the
// state of past runs for the API. It doubles as the runner's progress sink.
type RunManager struct {
	logger   *logrus.Logger
	executor RunExecutor

	mu          sync.RWMutex
	runs        map[string]*RunState
	subscribers map[string]map[chan models.ProgressEvent]struct{}
	active      string
	cancel      context.CancelFunc
	done        chan struct{}
}

// subscriberBuffer is how many progress events a slow subscriber may lag
// behind before events are dropped for it
const subscriberBuffer = 64

// NewRunManager creates an unbound manager. Bind must be called before Start.
func NewRunManager(logger *logrus.Logger) *RunManager {
	return &RunManager{
		logger:      logger,
		runs:        make(map[string]*RunState),
		subscribers: make(map[string]map[chan models.ProgressEvent]struct{}),
	}
}

// Bind sets the executor used by Start
func (m *RunManager) Bind(executor RunExecutor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
}

// Start launches req in the background and returns its initial state
func (m *RunManager) Start(req pipeline.RunRequest) (RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.executor == nil {
		return RunState{}, ErrNoExecutor
	}
	if m.active != "" {
		return RunState{}, ErrRunInProgress
	}

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if _, exists := m.runs[req.RunID]; exists {
		return RunState{}, ErrRunInProgress
	}

	state := &RunState{
		ID:        req.RunID,
		Status:    RunQueued,
		Request:   req,
		StartedAt: time.Now(),
	}
	m.runs[req.RunID] = state
	m.active = req.RunID

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.execute(ctx, m.executor, req, m.done)

	m.logger.WithField("run_id", req.RunID).Info("Run queued")
	return *state, nil
}

func (m *RunManager) execute(ctx context.Context, executor RunExecutor, req pipeline.RunRequest, done chan struct{}) {
	defer close(done)

	m.update(req.RunID, func(s *RunState) { s.Status = RunRunning })

	result, err := executor.Run(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.runs[req.RunID]
	now := time.Now()
	state.FinishedAt = &now
	if err != nil {
		state.Status = RunFailed
		state.Error = err.Error()
		m.logger.WithError(err).WithField("run_id", req.RunID).Error("Run failed")
	} else {
		state.Status = RunCompleted
		state.Result = result
	}

	for ch := range m.subscribers[req.RunID] {
		close(ch)
	}
	delete(m.subscribers, req.RunID)

	m.active = ""
	m.cancel()
	m.cancel = nil
}

func (m *RunManager) update(id string, fn func(*RunState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.runs[id]; ok {
		fn(state)
	}
}

// Publish records event as the latest progress of the active run
func (m *RunManager) Publish(event models.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return
	}
	if state, ok := m.runs[m.active]; ok {
		state.Progress = &event
	}
	for ch := range m.subscribers[m.active] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe streams the progress events of run id until it finishes. The
// channel is closed when the run ends or cancel is called. A finished run
// yields an already closed channel.
func (m *RunManager) Subscribe(id string) (<-chan models.ProgressEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return nil, nil, ErrRunNotFound
	}

	ch := make(chan models.ProgressEvent, subscriberBuffer)
	if m.active != id {
		close(ch)
		return ch, func() {}, nil
	}

	if m.subscribers[id] == nil {
		m.subscribers[id] = make(map[chan models.ProgressEvent]struct{})
	}
	m.subscribers[id][ch] = struct{}{}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id][ch]; ok {
			delete(m.subscribers[id], ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Get returns a snapshot of run id
func (m *RunManager) Get(id string) (RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.runs[id]
	if !ok {
		return RunState{}, ErrRunNotFound
	}
	return *state, nil
}

// List returns snapshots of every known run, newest first
func (m *RunManager) List() []RunState {
	m.mu.RLock()
	states := make([]RunState, 0, len(m.runs))
	for _, state := range m.runs {
		states = append(states, *state)
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
	return states
}

// Active returns the ID of the running run, if any
func (m *RunManager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.active != ""
}

// Close cancels the active run and waits for it to return or for ctx
func (m *RunManager) Close(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
