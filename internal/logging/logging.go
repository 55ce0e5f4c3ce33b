package logging

import (
	"io"
	"os"
	"time"

	"github.com/blutspende/go-imagelink/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a logger from cfg. A file output is opened for appending and
// stays open for the life of the process.
func New(cfg config.LoggerConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Setup installs the logger from cfg as the global log.Logger, which every
// component derives its own logger from.
func Setup(cfg config.LoggerConfig) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}
}
