package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitAndSetLevel(t *testing.T) {
	if err := Init("info", "json"); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	if L() == nil {
		t.Fatal("global logger is nil after Init")
	}
	if got := GetLevel(); got != zapcore.InfoLevel {
		t.Fatalf("level after init: %v", got)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if got := GetLevel(); got != zapcore.DebugLevel {
		t.Fatalf("level after SetLevel: %v", got)
	}

	// Init is once-only; a second call must not reconfigure.
	if err := Init("error", "console"); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if got := GetLevel(); got != zapcore.DebugLevel {
		t.Fatalf("second Init must be a no-op, level: %v", got)
	}
}
