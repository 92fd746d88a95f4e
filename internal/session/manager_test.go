package session

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
)

func newTestManager(t *testing.T, lifetime time.Duration) (*Manager, *gorm.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "sessions.sqlite")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	return NewManager(db, zerolog.Nop(), lifetime), db
}

func TestLoadUnknownIDReturnsFreshSession(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		sess, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.False(t, sess.Persisted())
		assert.False(t, sess.Authenticated)
		assert.NotEmpty(t, sess.ID)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, err := m.Load(ctx, "")
	require.NoError(t, err)

	sess.SetUser("user-1", "admin@example.com")
	require.NoError(t, m.Save(ctx, sess))
	assert.True(t, sess.Persisted())

	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Persisted())
	assert.True(t, loaded.Authenticated)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Equal(t, "admin@example.com", loaded.UserEmail)
}

func TestClearUserRemovesAuthentication(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, _ := m.Load(ctx, "")
	sess.SetUser("user-1", "a@b.c")
	require.NoError(t, m.Save(ctx, sess))

	sess.ClearUser()
	require.NoError(t, m.Save(ctx, sess))

	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Authenticated)
	assert.Empty(t, loaded.UserID)
	assert.Empty(t, loaded.UserEmail)
}

func TestInputDataStashAndConsume(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, _ := m.Load(ctx, "")
	sess.StashInput(InputData{
		HasError:     true,
		Message:      "Invalid input",
		Email:        "someone@example.com",
		ConfirmEmail: "someone-else@example.com",
	})
	require.NoError(t, m.Save(ctx, sess))

	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)

	data := loaded.ConsumeInput()
	require.NotNil(t, data)
	assert.True(t, data.HasError)
	assert.Equal(t, "Invalid input", data.Message)
	assert.Equal(t, "someone@example.com", data.Email)

	// Consuming clears the payload in-memory; persist and re-load
	assert.Nil(t, loaded.PeekInput())
	require.NoError(t, m.Save(ctx, loaded))

	again, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, again.PeekInput())
}

func TestExpiredSessionLoadsAsFresh(t *testing.T) {
	m, db := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, _ := m.Load(ctx, "")
	sess.SetUser("user-1", "a@b.c")
	require.NoError(t, m.Save(ctx, sess))

	// Force the row into the past
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", sess.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	loaded, err := m.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Persisted())
	assert.False(t, loaded.Authenticated)
	assert.NotEqual(t, sess.ID, loaded.ID)
}

func TestPurgeExpired(t *testing.T) {
	m, db := newTestManager(t, time.Hour)
	ctx := context.Background()

	live, _ := m.Load(ctx, "")
	live.SetUser("user-live", "live@example.com")
	require.NoError(t, m.Save(ctx, live))

	expired, _ := m.Load(ctx, "")
	expired.SetUser("user-old", "old@example.com")
	require.NoError(t, m.Save(ctx, expired))
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	purged, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var count int64
	require.NoError(t, db.Model(&models.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	loaded, err := m.Load(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Persisted())
}

func TestSaveSkipsCleanPersistedSession(t *testing.T) {
	m, db := newTestManager(t, time.Hour)
	ctx := context.Background()

	sess, _ := m.Load(ctx, "")
	sess.SetUser("user-1", "a@b.c")
	require.NoError(t, m.Save(ctx, sess))

	var before models.Session
	require.NoError(t, db.Where("id = ?", sess.ID).First(&before).Error)

	// No mutation since the last save; this must not touch the row
	require.NoError(t, m.Save(ctx, sess))

	var after models.Session
	require.NoError(t, db.Where("id = ?", sess.ID).First(&after).Error)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}
