// Package rflog is the process's single logging entry point: one
// package-level leveled logger every component writes through.
package rflog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Logger is the package-level structured logger every component uses.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "rfacqd",
})

// SetLevel parses one of "debug"/"info"/"warn"/"error" (the cmd/rfacqd
// --log-level flag) and applies it.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// CaptureFile opens a per-session diagnostic trace file named
// "session-<timestamp>.log" under dir, for lost-frame/lock-transition events
// a bench operator might want to review after the fact. Returns nil, nil if
// dir is empty (capture disabled).
func CaptureFile(dir string) (io.WriteCloser, error) {
	if dir == "" {
		return nil, nil
	}
	pattern, err := strftime.New("session-%Y%m%dT%H%M%S.log")
	if err != nil {
		return nil, err
	}
	name := pattern.FormatString(time.Now())
	return os.Create(filepath.Join(dir, name))
}
