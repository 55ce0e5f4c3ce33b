package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError collects every problem of a config, not just the first.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError when anything is off.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateClient(cfg, ve)
	validateLogger(cfg, ve)
	validateWatch(cfg, ve)
	validateFTP(cfg, ve)
	if cfg.Cache.Capacity <= 0 {
		ve.Add("cache.capacity must be > 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		ve.Add("metrics.addr is required when metrics are enabled")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validPort(port int) bool {
	return port >= 0 && port <= 65535
}

func validateServer(cfg *Config, ve *ValidationError) {
	if !validPort(cfg.Server.Port) {
		ve.Add("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections < 0 {
		ve.Add("server.max_connections must be >= 0")
	}
	switch cfg.Server.Proxy {
	case "none", "haproxy-v2":
	default:
		ve.Add("server.proxy %q is not one of none, haproxy-v2", cfg.Server.Proxy)
	}
	if cfg.Server.MaxPayloadSize == 0 {
		ve.Add("server.max_payload_size must be > 0")
	}
	if cfg.Server.Deadline < 0 {
		ve.Add("server.deadline must be >= 0")
	}
	if cfg.Server.DrainInterval <= 0 {
		ve.Add("server.drain_interval must be > 0")
	}
}

func validateClient(cfg *Config, ve *ValidationError) {
	if cfg.Client.Host == "" {
		ve.Add("client.host is required")
	}
	if !validPort(cfg.Client.Port) || cfg.Client.Port == 0 {
		ve.Add("client.port %d out of range", cfg.Client.Port)
	}
	if cfg.Client.Timeout <= 0 {
		ve.Add("client.timeout must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if _, err := zerolog.ParseLevel(cfg.Logger.Level); err != nil {
		ve.Add("logger.level %q: %v", cfg.Logger.Level, err)
	}
	switch cfg.Logger.Format {
	case "console", "json":
	default:
		ve.Add("logger.format %q is not one of console, json", cfg.Logger.Format)
	}
	if cfg.Logger.Output == "" {
		ve.Add("logger.output is required")
	}
}

func validateWatch(cfg *Config, ve *ValidationError) {
	if _, err := path.Match(cfg.Watch.Pattern, ""); err != nil {
		ve.Add("watch.pattern %q: %v", cfg.Watch.Pattern, err)
	}
	if cfg.Watch.Rate < 0 {
		ve.Add("watch.rate must be >= 0")
	}
	if cfg.Watch.Rate > 0 && cfg.Watch.Burst <= 0 {
		ve.Add("watch.burst must be > 0 with a rate")
	}
}

func validateFTP(cfg *Config, ve *ValidationError) {
	if !validPort(cfg.FTP.Port) {
		ve.Add("ftp.port %d out of range", cfg.FTP.Port)
	}
	if _, err := path.Match(cfg.FTP.Pattern, ""); err != nil {
		ve.Add("ftp.pattern %q: %v", cfg.FTP.Pattern, err)
	}
	switch cfg.FTP.Strategy {
	case "donothing", "delete", "move2save":
	default:
		ve.Add("ftp.strategy %q is not one of donothing, delete, move2save", cfg.FTP.Strategy)
	}
	if cfg.FTP.PollInterval <= 0 {
		ve.Add("ftp.poll_interval must be > 0")
	}
}
