// Package models contains the data structures used throughout homelab-remote.
package models

import "time"

// AppConfig holds the complete configuration loaded from the config file.
type AppConfig struct {
	Defaults ExecOptions
	Service  ServiceSettings
	Targets  map[string]ConnectionTarget
	Telegram *TelegramConfig // nil if not configured
	Server   ServerSettings
}

// ServiceSettings names the web-server unit managed by ensure/status/stop.
type ServiceSettings struct {
	Name string
}

// ServerSettings holds settings for the HTTP surface.
type ServerSettings struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Target returns the named target and whether it exists.
func (c *AppConfig) Target(name string) (ConnectionTarget, bool) {
	t, ok := c.Targets[name]
	return t, ok
}
