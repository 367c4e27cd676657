package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"PIKO_PORT", "PIKO_SAMPLE_RATE", "PIKO_OUTPUT_DEVICE", "PIKO_MICROPHONE",
		"PIKO_FFMPEG", "PIKO_LOOKAHEAD_MS", "PIKO_TICK_MS", "PIKO_LOOP_CHECK_MS",
		"PIKO_BPM", "PIKO_PADS", "PIKO_SCRUB_FACTOR", "PIKO_KILL_DB",
		"PIKO_FEEDBACK_CAP", "PIKO_LIMITER_THRESHOLD_DB", "PIKO_MIC_MONITOR_GAIN",
		"PIKO_RECORD_FORMATS", "PIKO_KIT_DIR", "PIKO_REDIS_ADDR", "PIKO_SHARE_TTL_DAYS",
		"PIKO_MINIO_ENDPOINT", "PIKO_MINIO_BUCKET", "PIKO_MYSQL_DSN",
		"PIKO_LOG_LEVEL", "PIKO_LOG_FILE",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if !cfg.OutputDevice || !cfg.Microphone {
		t.Errorf("OutputDevice, Microphone = %v, %v, want true, true", cfg.OutputDevice, cfg.Microphone)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want 'ffmpeg'", cfg.FFmpegPath)
	}
	if cfg.Lookahead != 100*time.Millisecond {
		t.Errorf("Lookahead = %v, want 100ms", cfg.Lookahead)
	}
	if cfg.Tick != 25*time.Millisecond {
		t.Errorf("Tick = %v, want 25ms", cfg.Tick)
	}
	if cfg.LoopCheck != 30*time.Millisecond {
		t.Errorf("LoopCheck = %v, want 30ms", cfg.LoopCheck)
	}
	if cfg.DefaultBPM != 120 {
		t.Errorf("DefaultBPM = %f, want 120", cfg.DefaultBPM)
	}
	if cfg.Pads != 8 {
		t.Errorf("Pads = %d, want 8", cfg.Pads)
	}
	if cfg.KillDB != -100 {
		t.Errorf("KillDB = %f, want -100", cfg.KillDB)
	}
	if cfg.FeedbackCap != 0.9 {
		t.Errorf("FeedbackCap = %f, want 0.9", cfg.FeedbackCap)
	}
	if cfg.MicMonitorGain != 0.15 {
		t.Errorf("MicMonitorGain = %f, want 0.15", cfg.MicMonitorGain)
	}
	if cfg.RecordFormats != nil {
		t.Errorf("RecordFormats = %v, want nil", cfg.RecordFormats)
	}
	if cfg.RedisAddr != "" || cfg.MinioEndpoint != "" || cfg.MySQLDSN != "" {
		t.Error("stores should be disabled by default")
	}
	if cfg.ShareTTL != 30*24*time.Hour {
		t.Errorf("ShareTTL = %v, want 720h", cfg.ShareTTL)
	}
	if cfg.MinioBucket != "piko-recordings" {
		t.Errorf("MinioBucket = %q, want 'piko-recordings'", cfg.MinioBucket)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want 'info'", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIKO_PORT", "3000")
	t.Setenv("PIKO_SAMPLE_RATE", "44100")
	t.Setenv("PIKO_OUTPUT_DEVICE", "false")
	t.Setenv("PIKO_LOOKAHEAD_MS", "150")
	t.Setenv("PIKO_TICK_MS", "20")
	t.Setenv("PIKO_BPM", "96.5")
	t.Setenv("PIKO_KILL_DB", "-80")
	t.Setenv("PIKO_FEEDBACK_CAP", "0.75")
	t.Setenv("PIKO_RECORD_FORMATS", "audio/wav, ,audio/ogg;codecs=opus")
	t.Setenv("PIKO_KIT_DIR", "/kits/808")
	t.Setenv("PIKO_REDIS_ADDR", "redis:6379")
	t.Setenv("PIKO_SHARE_TTL_DAYS", "7")
	t.Setenv("PIKO_MYSQL_DSN", "piko:pw@tcp(db:3306)/piko")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.OutputDevice {
		t.Error("OutputDevice = true, want env override")
	}
	if cfg.Lookahead != 150*time.Millisecond {
		t.Errorf("Lookahead = %v, want 150ms", cfg.Lookahead)
	}
	if cfg.Tick != 20*time.Millisecond {
		t.Errorf("Tick = %v, want 20ms", cfg.Tick)
	}
	if cfg.DefaultBPM != 96.5 {
		t.Errorf("DefaultBPM = %f, want 96.5", cfg.DefaultBPM)
	}
	if cfg.KillDB != -80 {
		t.Errorf("KillDB = %f, want -80", cfg.KillDB)
	}
	if cfg.FeedbackCap != 0.75 {
		t.Errorf("FeedbackCap = %f, want 0.75", cfg.FeedbackCap)
	}
	if len(cfg.RecordFormats) != 2 || cfg.RecordFormats[0] != "audio/wav" || cfg.RecordFormats[1] != "audio/ogg;codecs=opus" {
		t.Errorf("RecordFormats = %q, want [audio/wav audio/ogg;codecs=opus]", cfg.RecordFormats)
	}
	if cfg.KitDir != "/kits/808" {
		t.Errorf("KitDir = %q, want env override", cfg.KitDir)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want env override", cfg.RedisAddr)
	}
	if cfg.ShareTTL != 7*24*time.Hour {
		t.Errorf("ShareTTL = %v, want 168h", cfg.ShareTTL)
	}
	if cfg.MySQLDSN != "piko:pw@tcp(db:3306)/piko" {
		t.Errorf("MySQLDSN = %q, want env override", cfg.MySQLDSN)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("PIKO_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("PIKO_MICROPHONE", "sometimes")
	cfg := Load()
	if !cfg.Microphone {
		t.Error("Invalid bool env should fallback to default true")
	}
}

func TestEnvStrEmpty(t *testing.T) {
	// Empty string should use fallback
	os.Unsetenv("PIKO_FFMPEG")
	cfg := Load()
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("Unset env should use fallback: got %q", cfg.FFmpegPath)
	}
}

func TestEnvListOnlySeparators(t *testing.T) {
	t.Setenv("PIKO_RECORD_FORMATS", " , ,")
	if got := envList("PIKO_RECORD_FORMATS", []string{"audio/wav"}); len(got) != 1 || got[0] != "audio/wav" {
		t.Errorf("envList = %q, want fallback", got)
	}
}
