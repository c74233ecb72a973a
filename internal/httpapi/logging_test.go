package httpapi

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inferhost/pkg/types"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"INFO":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("short query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	defer SetRequestLogLevel("info")
	SetRequestLogLevel("off")
	if got := requestLogLevel(httptest.NewRequest("GET", "/x", nil)); got != LevelOff {
		t.Fatalf("default level not applied: %v", got)
	}
}

func TestFrameLogWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	fw := &frameLogWriter{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	_, _ = fw.Write([]byte("{\"text\":\"a\"}\n{\"text\":"))
	_, _ = fw.Write([]byte("\"b\"}\n{\"done\":true}\n"))

	out := buf.String()
	if n := strings.Count(out, "\n"); n != 3 {
		t.Fatalf("expected 3 log lines, got %d: %q", n, out)
	}
	if !strings.Contains(out, `"frame":{"text":"b"}`) {
		t.Fatalf("missing joined frame: %q", out)
	}
}

func TestEvaluateStreamsWithDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())

	svc := &mockService{chunks: []types.Chunk{{Text: "a"}, {Done: true, State: "done"}}}
	req := httptest.NewRequest("POST", "/v1/evaluate?log=debug", strings.NewReader(`{"user":"hi","stream":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 with debug logging, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, `"event":"evaluate_start"`) || !strings.Contains(out, `"event":"frame"`) {
		t.Fatalf("missing log events: %q", out)
	}
	if !strings.Contains(out, `"request_id"`) {
		t.Fatalf("request id not logged: %q", out)
	}
}
