package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/pikomusic/studio/internal/pattern"
	"github.com/pikomusic/studio/internal/recorder"
)

type memKV struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memKV) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	m.data[key] = value.(string)
	m.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Close() error { return nil }

// --- Pattern store ---

func TestPatternStoreRoundTrip(t *testing.T) {
	kv := newMemKV()
	s := newPatternStore(kv, 0)
	p := pattern.New(8)
	_ = p.Set(0, 0, true)
	_ = p.Set(7, 15, true)

	id, err := s.Save(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 10 {
		t.Errorf("id = %q, want 10 characters", id)
	}
	if got := kv.ttl[PatternKey(id)]; got != DefaultShareTTL {
		t.Errorf("ttl = %v, want %v", got, DefaultShareTTL)
	}
	if got := kv.data[PatternKey(id)]; got != pattern.Encode(p) {
		t.Errorf("stored %q, want %q", got, pattern.Encode(p))
	}

	back, err := s.Load(context.Background(), id, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(p) {
		t.Error("loaded pattern differs from saved")
	}
}

func TestPatternStoreMissingAndCorrupt(t *testing.T) {
	kv := newMemKV()
	s := newPatternStore(kv, time.Hour)
	if _, err := s.Load(context.Background(), "nope", 8); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) = %v, want ErrNotFound", err)
	}
	kv.data[PatternKey("bad")] = "1-2-3"
	if _, err := s.Load(context.Background(), "bad", 8); !errors.Is(err, pattern.ErrInvalid) {
		t.Errorf("Load(corrupt) = %v, want ErrInvalid", err)
	}
}

// --- Archive ---

func TestObjectKey(t *testing.T) {
	res := &recorder.Result{ID: "abc", Filename: "piko-mix-2026-04-01-2130.ogg"}
	at := time.Date(2026, 4, 1, 21, 30, 0, 0, time.UTC)
	want := "recordings/2026/04/01/abc-piko-mix-2026-04-01-2130.ogg"
	if got := ObjectKey(res, at); got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}
}

// --- Catalog ---

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "piko:piko@tcp(127.0.0.1:1)/piko?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestCatalogListQuery(t *testing.T) {
	db := dryRunDB(t)
	tests := []struct {
		kind  string
		limit int
		want  []string
		not   []string
	}{
		{"mix", 5, []string{"`piko_recordings`", "kind = 'mix'", "ORDER BY created_at DESC", "LIMIT 5"}, nil},
		{"", 0, []string{"LIMIT 20"}, []string{"kind ="}},
		{"", 1000, []string{"LIMIT 20"}, nil},
	}
	for _, tt := range tests {
		sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			return listQuery(tx, tt.kind, tt.limit).Find(&[]Recording{})
		})
		for _, w := range tt.want {
			if !strings.Contains(sql, w) {
				t.Errorf("List(%q, %d) SQL %q missing %q", tt.kind, tt.limit, sql, w)
			}
		}
		for _, n := range tt.not {
			if strings.Contains(sql, n) {
				t.Errorf("List(%q, %d) SQL %q contains %q", tt.kind, tt.limit, sql, n)
			}
		}
	}
}

func TestNewRecording(t *testing.T) {
	res := &recorder.Result{
		ID:       "id-1",
		Filename: "piko-voice-tag-2026-04-01-2130.wav",
		MimeType: recorder.MimeWAV,
		Size:     1024,
		Duration: 2500 * time.Millisecond,
	}
	rec := NewRecording("voice-tag", res, "recordings/x")
	if rec.DurationMs != 2500 || rec.Kind != "voice-tag" || rec.ObjectKey != "recordings/x" {
		t.Errorf("NewRecording = %+v", rec)
	}
	if err := NewCatalog(dryRunDB(t)).Add(context.Background(), rec); err != nil {
		t.Errorf("Add (dry run) = %v", err)
	}
}
