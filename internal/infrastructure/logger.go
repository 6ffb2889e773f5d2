package infrastructure

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/rs/zerolog"
)

// Logger is the ambient logging type threaded through services and
// middleware. zerolog.Event already exposes the Str/Int/Err/Time/Msg chain
// every call-site below relies on, so no bespoke wrapper interface is
// needed.
type Logger = zerolog.Logger

// New builds the service-wide logger from LoggingConfig: JSON to stdout by
// default, human-readable console output when Format is "console".
func New(cfg config.LoggingConfig) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()
}
