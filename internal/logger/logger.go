// Package logger configures the zerolog logger shared across the gateway
// and bridges it into the protocol client's logging interface.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// New creates the root logger at the given level. Levels follow zerolog
// naming (trace, debug, info, warn, error).
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Wa wraps a zerolog logger for the protocol client.
func Wa(log zerolog.Logger, module string) waLog.Logger {
	return waLog.Zerolog(log.With().Str("component", module).Logger())
}
