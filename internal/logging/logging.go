package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger from the environment and returns it.
// DEV gets a coloured console writer on stderr, everything else gets JSON lines.
func Setup(cfg config.EnvConfig) zerolog.Logger {
	logger := New(os.Stderr, cfg.GetEnv(), cfg.GetLogLevel())
	zerolog.SetGlobalLevel(logger.GetLevel())
	log.Logger = logger
	return logger
}

func New(w io.Writer, env, level string) zerolog.Logger {
	if strings.EqualFold(env, "DEV") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel falls back to info for unknown level names.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
