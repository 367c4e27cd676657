package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Engine
	SampleRate   int
	OutputDevice bool // pull audio through the speaker instead of pacing it
	Microphone   bool // allow the mic to be enabled
	FFmpegPath   string

	// Transport and sequencer cadences
	Lookahead   time.Duration
	Tick        time.Duration
	LoopCheck   time.Duration
	DefaultBPM  float64
	Pads        int
	ScrubFactor float64

	// Parameter surface defaults
	KillDB             float64 // attenuation of a killed EQ band
	FeedbackCap        float64 // upper bound of delay feedback
	LimiterThresholdDB float64
	MicMonitorGain     float64

	// Recording
	RecordFormats []string // container preference, first supported wins

	// Samples
	KitDir string

	// Share links (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ShareTTL      time.Duration

	// Recording archive (disabled when MinioEndpoint is empty)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Recording catalog (disabled when MySQLDSN is empty)
	MySQLDSN string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is read first; it never overrides
// variables that are already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envInt("PIKO_PORT", 8080),

		SampleRate:   envInt("PIKO_SAMPLE_RATE", 48000),
		OutputDevice: envBool("PIKO_OUTPUT_DEVICE", true),
		Microphone:   envBool("PIKO_MICROPHONE", true),
		FFmpegPath:   envStr("PIKO_FFMPEG", "ffmpeg"),

		Lookahead:   time.Duration(envInt("PIKO_LOOKAHEAD_MS", 100)) * time.Millisecond,
		Tick:        time.Duration(envInt("PIKO_TICK_MS", 25)) * time.Millisecond,
		LoopCheck:   time.Duration(envInt("PIKO_LOOP_CHECK_MS", 30)) * time.Millisecond,
		DefaultBPM:  envFloat("PIKO_BPM", 120),
		Pads:        envInt("PIKO_PADS", 8),
		ScrubFactor: envFloat("PIKO_SCRUB_FACTOR", 0.1),

		KillDB:             envFloat("PIKO_KILL_DB", -100),
		FeedbackCap:        envFloat("PIKO_FEEDBACK_CAP", 0.9),
		LimiterThresholdDB: envFloat("PIKO_LIMITER_THRESHOLD_DB", -1),
		MicMonitorGain:     envFloat("PIKO_MIC_MONITOR_GAIN", 0.15),

		RecordFormats: envList("PIKO_RECORD_FORMATS", nil),

		KitDir: envStr("PIKO_KIT_DIR", ""),

		RedisAddr:     envStr("PIKO_REDIS_ADDR", ""),
		RedisPassword: envStr("PIKO_REDIS_PASSWORD", ""),
		RedisDB:       envInt("PIKO_REDIS_DB", 0),
		ShareTTL:      time.Duration(envInt("PIKO_SHARE_TTL_DAYS", 30)) * 24 * time.Hour,

		MinioEndpoint:  envStr("PIKO_MINIO_ENDPOINT", ""),
		MinioAccessKey: envStr("PIKO_MINIO_ACCESS_KEY", ""),
		MinioSecretKey: envStr("PIKO_MINIO_SECRET_KEY", ""),
		MinioBucket:    envStr("PIKO_MINIO_BUCKET", "piko-recordings"),
		MinioUseSSL:    envBool("PIKO_MINIO_SSL", false),

		MySQLDSN: envStr("PIKO_MYSQL_DSN", ""),

		LogLevel: envStr("PIKO_LOG_LEVEL", "info"),
		LogFile:  envStr("PIKO_LOG_FILE", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma separated value and drops empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
