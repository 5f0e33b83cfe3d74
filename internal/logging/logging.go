// Package logging builds the zerolog loggers used by every binary.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailgate/internal/conf"
)

// New returns a logger writing to stderr with the configured level and format.
func New(cfg conf.LoggingConfig, component string) zerolog.Logger {
	return NewWithWriter(os.Stderr, cfg, component)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg conf.LoggingConfig, component string) zerolog.Logger {
	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// MaskPassword hides the password argument of a LOGIN line so it can be logged.
func MaskPassword(line string) string {
	fields := strings.Fields(line)
	if len(fields) >= 4 && strings.EqualFold(fields[1], "LOGIN") {
		return strings.Join(fields[:3], " ") + " ********"
	}
	return line
}

// SanitizeResponse masks message literals larger than 100 bytes in FETCH
// responses and truncates anything longer than 2000 bytes.
func SanitizeResponse(response string) string {
	if strings.Contains(response, "FETCH (") &&
		(strings.Contains(response, "BODY") || strings.Contains(response, "RFC822")) {
		if idx := strings.Index(response, "{"); idx != -1 {
			if closeIdx := strings.Index(response[idx:], "}"); closeIdx != -1 {
				closeIdx += idx
				sizeStr := response[idx+1 : closeIdx]
				if size, err := strconv.Atoi(sizeStr); err == nil && size > 100 {
					return response[:closeIdx+1] + " [MESSAGE CONTENT OMITTED - " + sizeStr + " bytes]"
				}
			}
		}
	}

	if len(response) > 2000 {
		return response[:2000] + "... [TRUNCATED - " + strconv.Itoa(len(response)) + " total bytes]"
	}
	return response
}
