// Package logging builds the root zerolog logger. Everything that logs
// receives a logger explicitly; there is no package-global instance.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a structured logger writing to w at the given level.
// Unknown level strings fall back to info. The MCP server passes stderr
// here; stdout belongs to the protocol.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
