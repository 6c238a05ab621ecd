// Package logging wires up structured logging for both executables. It is
// a trimmed adaptation of the sdk's journald-or-console logger: a
// privileged system service logs to journald when available and falls
// back to a plain console writer, but unlike a user-facing CLI tool it
// never needs a file-locked logfile of its own.
package logging

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/journald"
)

func journaldAvailable() bool {
	conn, err := net.Dial("unixgram", "/run/systemd/journal/socket")
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

// New creates a logger for the named component. The level can be
// overridden by setting ${NAME}_DEBUG or ${NAME}_TRACE in the
// environment, matching the convention used elsewhere in this codebase's
// ancestry.
func New(name, level string) zerolog.Logger {
	var w zerolog.LevelWriter
	if journaldAvailable() {
		w = zerolog.MultiLevelWriter(journald.NewJournalDWriter())
	} else {
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}

	upper := strings.ToUpper(name)
	if os.Getenv(upper+"_TRACE") != "" {
		l = zerolog.TraceLevel
	} else if os.Getenv(upper+"_DEBUG") != "" {
		l = zerolog.DebugLevel
	}

	return zerolog.New(w).With().Timestamp().Str("component", name).Logger().Level(l)
}
