// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to w at the named level. Unknown or empty
// levels fall back to info; a nil writer means stdout.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}
