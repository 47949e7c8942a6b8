package config

import (
	"fmt"
	"slices"
	"strings"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate checks business rules on the loaded configuration.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("environment must be one of development, production, testing (got %q)", c.Environment)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range (got %d)", c.Server.Port)
	}

	if !c.IsDevelopment() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters outside development (got %d)", len(c.Auth.JWTSecret))
	}

	if err := c.WebSocket.validate(); err != nil {
		return fmt.Errorf("websocket: %w", err)
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %s (got %q)", strings.Join(validLogLevels, ", "), c.Log.Level)
	}

	return nil
}

func (w *WebSocketConfig) validate() error {
	if w.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be > 0 (got %s)", w.IdleTimeout)
	}
	if w.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be > 0 (got %s)", w.SweepInterval)
	}
	if w.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be > 0 (got %s)", w.ReadTimeout)
	}
	if w.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be > 0 (got %s)", w.WriteTimeout)
	}
	if w.MaxMissedPings < 0 {
		return fmt.Errorf("max_missed_pings must be >= 0 (got %d)", w.MaxMissedPings)
	}
	return nil
}
