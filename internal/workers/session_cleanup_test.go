package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gatehouse-dev/gatehouse/internal/models"
	"github.com/gatehouse-dev/gatehouse/internal/session"
)

func newTestSessions(t *testing.T) (*session.Manager, *gorm.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "gatehouse.sqlite")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	return session.NewManager(db, zerolog.Nop(), time.Hour), db
}

func TestSessionCleanerPurgesOnStart(t *testing.T) {
	sessions, db := newTestSessions(t)
	ctx := context.Background()

	live, err := sessions.Load(ctx, "")
	require.NoError(t, err)
	live.SetUser("user-live", "live@example.com")
	require.NoError(t, sessions.Save(ctx, live))

	expired, err := sessions.Load(ctx, "")
	require.NoError(t, err)
	expired.SetUser("user-old", "old@example.com")
	require.NoError(t, sessions.Save(ctx, expired))
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	cleaner := NewSessionCleaner(sessions, zerolog.Nop(), "@every 1h")
	require.NoError(t, cleaner.Start())
	defer cleaner.Stop()

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var remaining models.Session
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, live.ID, remaining.ID)
}

func TestSessionCleanerRejectsBadSpec(t *testing.T) {
	sessions, _ := newTestSessions(t)

	cleaner := NewSessionCleaner(sessions, zerolog.Nop(), "not a cron spec")
	assert.Error(t, cleaner.Start())
}
