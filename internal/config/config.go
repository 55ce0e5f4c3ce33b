package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "IMAGELINK_"

// Config is the file format of the imagelink command.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Logger  LoggerConfig  `yaml:"logger"`
	Metrics MetricsConfig `yaml:"metrics"`
	Cache   CacheConfig   `yaml:"cache"`
	Watch   WatchConfig   `yaml:"watch"`
	FTP     FTPConfig     `yaml:"ftp"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxConnections int           `yaml:"max_connections"` // 0 = unlimited
	Proxy          string        `yaml:"proxy"`           // "none" or "haproxy-v2"
	MaxPayloadSize uint64        `yaml:"max_payload_size"`
	Deadline       time.Duration `yaml:"deadline"`
	DrainInterval  time.Duration `yaml:"drain_interval"`
	// Autoload requests the data of every lazy image as soon as it is announced
	Autoload bool `yaml:"autoload"`
}

type ClientConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Timeout       time.Duration `yaml:"timeout"`
	Viewer        string        `yaml:"viewer"`
	KeepProviders bool          `yaml:"keep_providers"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
	Output string `yaml:"output"` // "stderr", "stdout" or a file path
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

type WatchConfig struct {
	Dir              string  `yaml:"dir"`
	Pattern          string  `yaml:"pattern"`
	RepublishOnWrite bool    `yaml:"republish_on_write"`
	Rate             float64 `yaml:"rate"` // announcements per second, 0 = unthrottled
	Burst            int     `yaml:"burst"`
}

type FTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Dir          string        `yaml:"dir"`
	Pattern      string        `yaml:"pattern"`
	Strategy     string        `yaml:"strategy"` // "donothing", "delete" or "move2save"
	PollInterval time.Duration `yaml:"poll_interval"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           4207,
			Proxy:          "none",
			MaxPayloadSize: 1 << 30,
			Deadline:       time.Second,
			DrainInterval:  100 * time.Millisecond,
		},
		Client: ClientConfig{
			Host:    "127.0.0.1",
			Port:    4207,
			Timeout: 3 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9207",
		},
		Cache: CacheConfig{
			Capacity: 5,
		},
		Watch: WatchConfig{
			Pattern: "*",
			Burst:   1,
		},
		FTP: FTPConfig{
			Port:         21,
			User:         "anonymous",
			Password:     "anonymous",
			Dir:          "/",
			Pattern:      "*",
			Strategy:     "donothing",
			PollInterval: 10 * time.Second,
			DialTimeout:  3 * time.Second,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error, the
// defaults and the environment are used then. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides takes IMAGELINK_* variables over whatever is configured.
func ApplyEnvOverrides(cfg *Config) error {
	texts := map[string]*string{
		"SERVER_HOST":   &cfg.Server.Host,
		"SERVER_PROXY":  &cfg.Server.Proxy,
		"CLIENT_HOST":   &cfg.Client.Host,
		"CLIENT_VIEWER": &cfg.Client.Viewer,
		"LOGGER_LEVEL":  &cfg.Logger.Level,
		"LOGGER_FORMAT": &cfg.Logger.Format,
		"LOGGER_OUTPUT": &cfg.Logger.Output,
		"METRICS_ADDR":  &cfg.Metrics.Addr,
		"FTP_HOST":      &cfg.FTP.Host,
		"FTP_USER":      &cfg.FTP.User,
		"FTP_PASSWORD":  &cfg.FTP.Password,
	}
	for name, target := range texts {
		if v := os.Getenv(envPrefix + name); v != "" {
			*target = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":            &cfg.Server.Port,
		"SERVER_MAX_CONNECTIONS": &cfg.Server.MaxConnections,
		"CLIENT_PORT":            &cfg.Client.Port,
		"CACHE_CAPACITY":         &cfg.Cache.Capacity,
		"FTP_PORT":               &cfg.FTP.Port,
	}
	for name, target := range ints {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*target = n
		}
	}

	if v := os.Getenv(envPrefix + "METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_ENABLED: %w", envPrefix, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}
