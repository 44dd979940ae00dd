// Package logging configures the process-wide logrus logger shared by the
// client CLI and the server, replacing the plain log.Printf calls the
// desktop client used.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger configured for either human-readable text
// (default, TTY-friendly for the CLI) or structured JSON (set
// SYNCD_LOG_FORMAT=json, the shape a server running under a log collector
// wants).
func New(component string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	if os.Getenv("SYNCD_LOG_FORMAT") == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if lvl, err := logrus.ParseLevel(os.Getenv("SYNCD_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	return l.WithField("component", component)
}
