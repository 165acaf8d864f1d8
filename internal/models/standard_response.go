package models

import "time"

// StandardResponse is the envelope of every API response
// @Description Envelope shared by all endpoints
type StandardResponse struct {
	// Outcome of the request (success, error)
	Status string `json:"status" example:"success"`

	// Human readable summary
	Message string `json:"message" example:"Run started"`

	// Payload, only when status = success
	Data interface{} `json:"data,omitempty"`

	// Failure details, only when status = error
	Error *ErrorDetails `json:"error,omitempty"`

	Meta *ResponseMeta `json:"meta"`
}

// ErrorDetails describes a failed request
type ErrorDetails struct {
	Code    string      `json:"code" example:"RUN_IN_PROGRESS"`
	Message string      `json:"message" example:"a run is already in progress"`
	Details interface{} `json:"details,omitempty"`
}

// ResponseMeta holds response metadata
type ResponseMeta struct {
	Timestamp     time.Time `json:"timestamp" example:"2025-08-25T17:25:30.468715-03:00"`
	ExecutionTime string    `json:"execution_time,omitempty" example:"12ms"`
	RequestID     string    `json:"request_id,omitempty" example:"5f0c6a0e-8c1f-4f43-a3c4-0c7e0c1d9e11"`
	Version       string    `json:"version,omitempty" example:"v1"`
}

// Response statuses
const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// Error codes
const (
	ErrorCodeInvalidRequest = "INVALID_REQUEST"
	ErrorCodeRunInProgress  = "RUN_IN_PROGRESS"
	ErrorCodeRunNotFound    = "RUN_NOT_FOUND"
	ErrorCodeListingFailed  = "LISTING_FAILED"
	ErrorCodeJournalError   = "JOURNAL_ERROR"
	ErrorCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInternalError  = "INTERNAL_ERROR"
)

// NewSuccessResponse builds a success envelope
func NewSuccessResponse(message string, data interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  ResponseSuccess,
		Message: message,
		Data:    data,
		Meta: &ResponseMeta{
			Timestamp: time.Now(),
			Version:   "v1",
		},
	}
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(code, message string, details interface{}) *StandardResponse {
	return &StandardResponse{
		Status:  ResponseError,
		Message: "Request failed",
		Error: &ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &ResponseMeta{
			Timestamp: time.Now(),
			Version:   "v1",
		},
	}
}

// SetExecutionTime records how long the request took
func (r *StandardResponse) SetExecutionTime(duration time.Duration) {
	if r.Meta != nil {
		r.Meta.ExecutionTime = duration.String()
	}
}

// SetRequestID records the request ID
func (r *StandardResponse) SetRequestID(requestID string) {
	if r.Meta != nil {
		r.Meta.RequestID = requestID
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Version   string                 `json:"version" example:"1.0.0"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime" example:"2h30m45s"`
}

// ServiceInfo represents individual service health
type ServiceInfo struct {
	Status    string    `json:"status" example:"healthy"`
	LastCheck time.Time `json:"last_check" example:"2024-01-15T10:30:00Z"`
	Error     string    `json:"error,omitempty"`
}

// MetricsResponse represents metrics response
type MetricsResponse struct {
	Pipeline  PipelineMetrics        `json:"pipeline"`
	Runs      RunMetrics             `json:"runs"`
	Cache     CacheMetrics           `json:"cache"`
	Browser   BrowserMetrics         `json:"browser"`
	RateLimit map[string]interface{} `json:"rate_limit,omitempty"`
	System    SystemMetrics          `json:"system"`
	Timestamp time.Time              `json:"timestamp" example:"2024-01-15T10:30:00Z"`
}

// PipelineMetrics are the worker pool counters since startup
type PipelineMetrics struct {
	WorkersStarted int64 `json:"workers_started" example:"120"`
	WorkersFatal   int64 `json:"workers_fatal" example:"1"`
	ActiveWorkers  int64 `json:"active_workers" example:"10"`
	PagesOK        int64 `json:"pages_ok" example:"17500"`
	PagesFailed    int64 `json:"pages_failed" example:"12"`
}

// RunMetrics counts managed runs by status
type RunMetrics struct {
	Active    bool   `json:"active"`
	ActiveID  string `json:"active_id,omitempty"`
	Total     int    `json:"total" example:"4"`
	Completed int    `json:"completed" example:"3"`
	Failed    int    `json:"failed" example:"0"`
}

// CacheMetrics represents cache metrics
type CacheMetrics struct {
	RedisEnabled bool    `json:"redis_enabled"`
	HitRate      float64 `json:"hit_rate" example:"85.5"`
	Hits         int64   `json:"hits" example:"12"`
	Misses       int64   `json:"misses" example:"2"`
	Size         int     `json:"size" example:"2"`
}

// BrowserMetrics represents browser metrics
type BrowserMetrics struct {
	ActiveBrowsers int64 `json:"active_browsers" example:"8"`
	MaxBrowsers    int   `json:"max_browsers" example:"11"`
	Launched       int64 `json:"launched" example:"130"`
	LaunchFailures int64 `json:"launch_failures" example:"0"`
}

// SystemMetrics represents system metrics
type SystemMetrics struct {
	MemoryUsage float64 `json:"memory_usage" example:"512.5"`
	Goroutines  int     `json:"goroutines" example:"125"`
}
