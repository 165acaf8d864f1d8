package config

import "time"

// TimeoutConfig groups the timeouts that are not run parameters
type TimeoutConfig struct {
	// HTTP server
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	ShutdownTimeout    time.Duration

	// Portal
	ListingTimeout   time.Duration
	PreflightTimeout time.Duration

	// Exporters
	ExportTimeout time.Duration
}

// DefaultTimeoutConfig returns the default timeouts
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ServerReadTimeout:  30 * time.Second,
		ServerWriteTimeout: 30 * time.Second,
		ServerIdleTimeout:  60 * time.Second,
		ShutdownTimeout:    30 * time.Second,

		ListingTimeout:   90 * time.Second,
		PreflightTimeout: 45 * time.Second,

		ExportTimeout: 10 * time.Minute,
	}
}

// Timeouts derives the timeout set from the loaded configuration
func (c *Config) Timeouts() *TimeoutConfig {
	t := DefaultTimeoutConfig()
	if c.Server.ReadTimeout > 0 {
		t.ServerReadTimeout = time.Duration(c.Server.ReadTimeout) * time.Second
	}
	if c.Server.WriteTimeout > 0 {
		t.ServerWriteTimeout = time.Duration(c.Server.WriteTimeout) * time.Second
	}
	if c.Server.IdleTimeout > 0 {
		t.ServerIdleTimeout = time.Duration(c.Server.IdleTimeout) * time.Second
	}
	if c.Browser.StartupTimeout > 0 {
		t.PreflightTimeout = c.Browser.StartupTimeout + c.Extraction.PageTimeout
	}
	return t
}
