package logging

import (
	"testing"

	quartzlogger "github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestQuartzLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	q := NewQuartzLogger(zap.New(core))

	q.Info("Closing the StdScheduler.")
	q.Warnf("retrying in %ds", 5)
	q.Errorf("Failed to fetch queue size: %s", "boom")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	tests := []struct {
		msg   string
		level zapcore.Level
	}{
		{"Closing the StdScheduler.", zapcore.DebugLevel},
		{"retrying in 5s", zapcore.WarnLevel},
		{"Failed to fetch queue size: boom", zapcore.ErrorLevel},
	}
	for i, tt := range tests {
		if entries[i].Message != tt.msg {
			t.Errorf("entry %d message = %q, want %q", i, entries[i].Message, tt.msg)
		}
		if entries[i].Level != tt.level {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, tt.level)
		}
	}
}

func TestQuartzLoggerEnabled(t *testing.T) {
	core, _ := observer.New(zapcore.WarnLevel)
	q := NewQuartzLogger(zap.New(core))

	tests := []struct {
		level quartzlogger.Level
		want  bool
	}{
		{quartzlogger.LevelTrace, false},
		{quartzlogger.LevelInfo, false},
		{quartzlogger.LevelWarn, true},
		{quartzlogger.LevelError, true},
		{quartzlogger.LevelOff, false},
	}
	for _, tt := range tests {
		if got := q.Enabled(tt.level); got != tt.want {
			t.Errorf("Enabled(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestQuartzDefaultIsSilent(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	defer SetLogger(nil)

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	if _, ok := quartzlogger.Default().(*QuartzLogger); !ok {
		t.Fatalf("quartz default logger = %T, want *QuartzLogger", quartzlogger.Default())
	}
	if quartzlogger.Enabled(quartzlogger.LevelError) {
		t.Error("quartz logging should be off when no level is set")
	}
}

func TestQuartzDefaultFollowsGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	quartzlogger.Info("Exit the execution loop.")

	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].Message; got != "Exit the execution loop." {
		t.Errorf("message = %q", got)
	}
}
