// Package ranking credits wins to players by display name.
package ranking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recorder is notified whenever a game ends with a winner.
type Recorder interface {
	RecordWin(ctx context.Context, playerName string) error
	Top(ctx context.Context, limit int) ([]PlayerRanking, error)
}

// NopRecorder discards wins. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) RecordWin(context.Context, string) error { return nil }

func (NopRecorder) Top(context.Context, int) ([]PlayerRanking, error) { return nil, nil }

// PlayerRanking is one row of the leaderboard.
type PlayerRanking struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	Wins      int64     `gorm:"not null;default:0" json:"wins"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GormRecorder keeps win counts in postgres.
type GormRecorder struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the rankings table.
func Open(dsn string) (*GormRecorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect rankings db: %w", err)
	}
	return NewGormRecorder(db)
}

// NewGormRecorder migrates the rankings table on an existing connection.
func NewGormRecorder(db *gorm.DB) (*GormRecorder, error) {
	if err := db.AutoMigrate(&PlayerRanking{}); err != nil {
		return nil, fmt.Errorf("migrate rankings: %w", err)
	}
	return &GormRecorder{db: db}, nil
}

// RecordWin adds one win to playerName, creating the row on first win.
func (r *GormRecorder) RecordWin(ctx context.Context, playerName string) error {
	row := PlayerRanking{Name: playerName, Wins: 1, UpdatedAt: time.Now()}
	if err := upsertWin(r.db.WithContext(ctx), &row).Error; err != nil {
		return fmt.Errorf("record win for %s: %w", playerName, err)
	}
	return nil
}

func upsertWin(tx *gorm.DB, row *PlayerRanking) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"wins":       gorm.Expr("player_rankings.wins + 1"),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(row)
}

// Top returns the leading players by wins.
func (r *GormRecorder) Top(ctx context.Context, limit int) ([]PlayerRanking, error) {
	var rows []PlayerRanking
	err := r.db.WithContext(ctx).Order("wins desc, name").Limit(limit).Find(&rows).Error
	return rows, err
}
