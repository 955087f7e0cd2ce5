package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRedactsAndHashes(t *testing.T) {
	l, logs := observed()
	l.With("service", "test").Warn("sign in failed",
		"email", "asha@example.in",
		"access_token", "eyJ...",
		"user_id", "7d1c",
		"error", "bad password",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["email"] != "[REDACTED]" || fields["access_token"] != "[REDACTED]" {
		t.Errorf("secrets leaked: %v", fields)
	}
	if h, _ := fields["user_id"].(string); !strings.HasPrefix(h, "hash:") || len(h) != len("hash:")+12 {
		t.Errorf("user_id = %v", fields["user_id"])
	}
	if fields["error"] != "bad password" || fields["service"] != "test" {
		t.Errorf("plain fields changed: %v", fields)
	}
}

func TestOddKeyValues(t *testing.T) {
	got := sanitizeKVs([]interface{}{"Password", "x", "dangling"})
	if len(got) != 3 || got[1] != "[REDACTED]" || got[2] != "dangling" {
		t.Errorf("got %v", got)
	}
	if hashValue("") != "" {
		t.Error("empty value should stay empty")
	}
}
