package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"fitbase.app/internal/auth"
	"fitbase.app/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := obs.Logger()
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event")
	}
}

func TestLogEventEnrichesFromContext(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{UserID: "u-9"})
	if err := LogEvent(ctx, "auth.login", map[string]any{"email": "a@b.com"}); err != nil {
		t.Fatalf("log event: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["type"] != "audit" || entry["event"] != "auth.login" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["request_id"] != "req-123" || entry["user_id"] != "u-9" {
		t.Fatalf("context fields missing: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email"] != "a@b.com" {
		t.Fatalf("fields = %v", entry["fields"])
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := requestIDFromContext(ctx); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
