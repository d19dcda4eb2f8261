// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package obslog wires github.com/sirupsen/logrus into the core with the
// bsp runtime's own line format and log-file naming convention; a custom
// logrus.Formatter is the idiomatic way to get both.
package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// bspFormatter renders "[MM/DD/YYYY HH:MM:SS] - [LEVEL] : msg" lines.
type bspFormatter struct{}

func (bspFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.Format("01/02/2006 15:04:05")
	level := e.Level.String()
	line := fmt.Sprintf("[%s] - [%s] : %s", ts, level, e.Message)
	for k, v := range e.Data {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	line += "\n"
	return []byte(line), nil
}

// New builds a logrus.Logger writing the bsp wire format to w (typically
// os.Stdout and/or a rotated file handle from OpenLogFile).
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(bspFormatter{})
	l.SetOutput(w)
	l.SetLevel(level)
	return l
}

// OpenLogFile opens (creating parent directories as needed) the per-
// instance log file bsp-YYYYMMDDHHMM.log under logDir/instanceID, the
// naming convention the runtime's bootstrap sequence uses at startup.
func OpenLogFile(logDir, instanceID string, at time.Time) (*os.File, error) {
	dir := filepath.Join(logDir, instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("obslog: mkdir %s: %w", dir, err)
	}
	name := fmt.Sprintf("bsp-%s.log", at.Format("200601021504"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("obslog: open %s: %w", path, err)
	}
	return f, nil
}
