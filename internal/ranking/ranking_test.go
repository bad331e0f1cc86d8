package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestUpsertWinIncrementsExistingRow(t *testing.T) {
	db := dryRunDB(t)
	row := PlayerRanking{Name: "Alice", Wins: 1, UpdatedAt: time.Unix(0, 0)}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return upsertWin(tx, &row)
	})
	assert.Contains(t, sql, `INSERT INTO "player_rankings"`)
	assert.Contains(t, sql, `ON CONFLICT ("name") DO UPDATE SET`)
	assert.Contains(t, sql, "player_rankings.wins + 1")
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	assert.NoError(t, r.RecordWin(context.Background(), "Alice"))
	top, err := r.Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}
