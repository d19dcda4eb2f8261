package obslog

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestFormatterWireFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.Info("worker started")

	line := buf.String()
	// [MM/DD/YYYY HH:MM:SS] - [LEVEL] : msg
	re := regexp.MustCompile(`^\[\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}\] - \[info\] : worker started\n$`)
	if !re.MatchString(line) {
		t.Fatalf("line does not match the wire format: %q", line)
	}
}

func TestFormatterAppendsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)
	log.WithField("fd", 12).Warn("socket error")

	line := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte("[warning] : socket error")) {
		t.Fatalf("missing level/message: %q", line)
	}
	if !bytes.Contains(buf.Bytes(), []byte("fd=12")) {
		t.Fatalf("missing structured field: %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.WarnLevel)
	log.Debug("hidden")
	log.Info("also hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected below-level lines suppressed, got %q", buf.String())
	}
}

func TestOpenLogFileNaming(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 2, 13, 45, 0, 0, time.UTC)

	f, err := OpenLogFile(dir, "3", at)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	defer f.Close()

	want := filepath.Join(dir, "3", "bsp-202608021345.log")
	if f.Name() != want {
		t.Fatalf("expected path %q, got %q", want, f.Name())
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected log file on disk: %v", err)
	}
}
