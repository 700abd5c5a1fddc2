package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "warn", Output: &buf})

	log.Info("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("info entry emitted at warn level: %s", buf.String())
	}

	log.WithField("user_id", "u1").Warnf("limit %d reached", 8)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	if entry["user_id"] != "u1" {
		t.Fatalf("missing field: %#v", entry)
	}
	if !strings.Contains(entry["message"].(string), "limit 8") {
		t.Fatalf("unexpected message: %#v", entry)
	}
}

func TestNewDefaultTagsComponent(t *testing.T) {
	log := NewDefault("poller")
	if log == nil {
		t.Fatal("nil logger")
	}
}
