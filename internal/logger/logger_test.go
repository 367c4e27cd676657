package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{"", "info"},
		{"loud", "info"},
	}
	for _, tt := range tests {
		if got := tt.in.zapLevel().String(); got != tt.want {
			t.Errorf("LogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesFile(t *testing.T) {
	// Before init every call is dropped.
	Info("dropped")

	path := filepath.Join(t.TempDir(), "logs", "studio.log")
	if err := InitLogger(Config{Level: DebugLevel, OutputPath: path, MaxSize: 1}); err != nil {
		t.Fatal(err)
	}
	Info("engine resumed", String("state", "running"), Int("rate", 48000))
	Warn("decode failed", ErrorField(errors.New("bad header")))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{`"msg":"engine resumed"`, `"rate":48000`, `"error":"bad header"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log file missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dropped") {
		t.Error("entry logged before init")
	}
}
