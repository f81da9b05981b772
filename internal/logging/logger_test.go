// README: Logger construction tests (level and format).
package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithOutput("debug", "json", &buf)
	logger.WithField("ride_id", "r1").Debug("ride created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if entry["ride_id"] != "r1" || entry["msg"] != "ride created" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewTextAndLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithOutput("loud", "text", &buf)
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", logger.GetLevel())
	}
	logger.Debug("hidden")
	logger.Info("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}
