// Package history appends cycle reports and terminal plays to a SQLite
// analytics database. It is the collaborator behind the orchestrator's
// Recorder boundary; the trading core never reads it back.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"optflow/internal/orchestrator"
	"optflow/internal/play"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type cycleModel struct {
	ID        uint   `gorm:"primaryKey"`
	Cycle     uint64 `gorm:"index"`
	StartedAt time.Time
	ElapsedMS int64
	DryRun    bool
	Expired   int
	Report    datatypes.JSON
	CreatedAt time.Time
}

func (cycleModel) TableName() string { return "cycle_reports" }

type playModel struct {
	ID          uint   `gorm:"primaryKey"`
	PlayID      string `gorm:"index"`
	Strategy    string `gorm:"index"`
	Symbol      string
	State       string
	CloseReason string
	CreatedAt   time.Time
	ClosedAt    time.Time
	Snapshot    datatypes.JSON
}

func (playModel) TableName() string { return "play_history" }

// Store implements orchestrator.Recorder on gorm + SQLite.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: creating %s: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&cycleModel{}, &playModel{}); err != nil {
		return nil, fmt.Errorf("history: migrating: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordCycle(ctx context.Context, report *orchestrator.CycleReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("history: encoding cycle report: %w", err)
	}
	rec := cycleModel{
		Cycle:     report.Cycle,
		StartedAt: report.StartedAt,
		ElapsedMS: report.Elapsed.Milliseconds(),
		DryRun:    report.DryRun,
		Expired:   report.Expired,
		Report:    datatypes.JSON(raw),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Store) RecordClosedPlay(ctx context.Context, p *play.Play) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("history: encoding play %s: %w", p.ID, err)
	}
	rec := playModel{
		PlayID:      p.ID,
		Strategy:    p.Strategy,
		Symbol:      p.Symbol,
		State:       p.State.String(),
		CloseReason: string(p.CloseReason),
		CreatedAt:   p.CreatedAt,
		ClosedAt:    p.UpdatedAt,
		Snapshot:    datatypes.JSON(raw),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}
