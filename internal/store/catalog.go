package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pikomusic/studio/internal/recorder"
)

// Recording is one catalog row.
type Recording struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Kind       string    `gorm:"size:16;index" json:"kind"`
	Filename   string    `gorm:"size:255" json:"filename"`
	MimeType   string    `gorm:"size:64" json:"mimeType"`
	Size       int       `json:"size"`
	DurationMs int64     `json:"durationMs"`
	ObjectKey  string    `gorm:"size:512" json:"objectKey,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

func (Recording) TableName() string { return "piko_recordings" }

// NewRecording builds the row for a finished recording.
func NewRecording(kind string, res *recorder.Result, objectKey string) Recording {
	return Recording{
		ID:         res.ID,
		Kind:       kind,
		Filename:   res.Filename,
		MimeType:   res.MimeType,
		Size:       res.Size,
		DurationMs: res.Duration.Milliseconds(),
		ObjectKey:  objectKey,
	}
}

// Catalog lists recordings kept by past sessions.
type Catalog struct {
	db *gorm.DB
}

// OpenCatalog connects to MySQL and migrates the recordings table.
func OpenCatalog(dsn string) (*Catalog, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect catalog: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("catalog pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	c := NewCatalog(db)
	if err := c.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return c, nil
}

// NewCatalog wraps an open database.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Migrate creates or updates the recordings table.
func (c *Catalog) Migrate() error {
	if err := c.db.AutoMigrate(&Recording{}); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

// Add inserts rec.
func (c *Catalog) Add(ctx context.Context, rec Recording) error {
	if err := c.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("add recording: %w", err)
	}
	return nil
}

// Get returns the row with id.
func (c *Catalog) Get(ctx context.Context, id string) (Recording, error) {
	var rec Recording
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns the newest rows of kind, or of every kind when kind is empty.
func (c *Catalog) List(ctx context.Context, kind string, limit int) ([]Recording, error) {
	var recs []Recording
	if err := listQuery(c.db.WithContext(ctx), kind, limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return recs, nil
}

func listQuery(tx *gorm.DB, kind string, limit int) *gorm.DB {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if kind != "" {
		tx = tx.Where("kind = ?", kind)
	}
	return tx.Order("created_at DESC").Limit(limit)
}

// Close releases the pool.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
