package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

// Config selects the level and the output format of the process logger.
type Config struct {
	Level  string    `yaml:"level" mapstructure:"level"`
	Pretty bool      `yaml:"pretty" mapstructure:"pretty"`
	Out    io.Writer `yaml:"-" mapstructure:"-"`
}

// New builds a logger writing to cfg.Out (stderr when nil). Unknown levels fall back to info.
func New(cfg Config) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
