package report

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(log.New(&buf, "", 0))

	r.Error("graph mirror failed", errors.New("timeout"), map[string]any{
		"user":   "ana@example.com",
		"course": "c1",
	})
	r.Close()

	got := buf.String()
	want := "report: graph mirror failed: timeout course=c1 user=ana@example.com"
	if strings.TrimSpace(got) != want {
		t.Fatalf("log line = %q, want %q", got, want)
	}
}

func TestNewWithoutTokenLogsOnly(t *testing.T) {
	r := New(log.New(&bytes.Buffer{}, "", 0), RollbarConfig{})
	if _, ok := r.(*LogReporter); !ok {
		t.Fatalf("New without token = %T, want *LogReporter", r)
	}
}
