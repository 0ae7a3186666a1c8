package api

import "time"

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Uploads do not pass through this server, so the
	// default stays short.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Must cover the complete flow, which re-streams the
	// staged payload through the digest engine.
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// applyDefaults fills in zero values with sensible defaults.
func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 3001
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}
