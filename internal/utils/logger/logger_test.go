package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	if err := Init("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetLogger(t *testing.T) {
	defer Reset()

	SetLogger(zap.NewNop())
	if Logger() == nil {
		t.Fatal("Logger() returned nil after SetLogger")
	}
	if Logger().Desugar().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("expected nop logger to have every level disabled")
	}
}

func TestInit_AppliesToExistingLoggers(t *testing.T) {
	Reset()
	defer func() { _ = Init("info") }()

	l := Logger()
	if l.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug must be disabled at the default level")
	}
	if err := Init("debug"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !l.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("logger obtained before Init did not pick up the debug level")
	}
}
