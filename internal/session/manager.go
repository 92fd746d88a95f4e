// Package session persists client sessions in the same database as the
// credential store. A session is loaded by the opaque identifier the client
// presents in a cookie, mutated in-handler, and written back with an
// explicit Save.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gatehouse-dev/gatehouse/internal/models"
)

// Manager loads, saves and expires persisted sessions
type Manager struct {
	db       *gorm.DB
	logger   zerolog.Logger
	lifetime time.Duration
}

// NewManager creates a session manager backed by the given database
func NewManager(db *gorm.DB, logger zerolog.Logger, lifetime time.Duration) *Manager {
	return &Manager{
		db:       db,
		logger:   logger,
		lifetime: lifetime,
	}
}

// Lifetime returns the absolute session lifetime
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Load resolves a session identifier to its persisted state. An empty id,
// an unknown id, or an expired row all yield a fresh unpersisted session,
// so callers never see an error for a client with a stale cookie.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return newSession(), nil
	}

	var rec models.Session
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newSession(), nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if time.Now().After(rec.ExpiresAt) {
		// Expired rows are left for the cleanup worker
		return newSession(), nil
	}

	input, err := decodeInput(rec.InputData)
	if err != nil {
		// A corrupt payload should not lock the client out
		m.logger.Warn().Err(err).Str("session_id", id).Msg("Discarding unreadable session input data")
		input = nil
	}

	return &Session{
		ID:            rec.ID,
		UserID:        rec.UserID,
		UserEmail:     rec.UserEmail,
		Authenticated: rec.Authenticated,
		input:         input,
		persisted:     true,
	}, nil
}

// Save writes the session state to the store. The first save inserts the
// row and fixes its expiry; later saves update in place.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s.persisted && !s.dirty {
		return nil
	}

	input, err := encodeInput(s.input)
	if err != nil {
		return err
	}

	if !s.persisted {
		rec := models.Session{
			BaseModel:     models.BaseModel{ID: s.ID},
			UserID:        s.UserID,
			UserEmail:     s.UserEmail,
			Authenticated: s.Authenticated,
			InputData:     input,
			ExpiresAt:     time.Now().Add(m.lifetime),
		}
		if err := m.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create session %s: %w", s.ID, err)
		}
		s.persisted = true
		s.dirty = false
		return nil
	}

	updates := map[string]interface{}{
		"user_id":       s.UserID,
		"user_email":    s.UserEmail,
		"authenticated": s.Authenticated,
		"input_data":    input,
	}
	if err := m.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", s.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	s.dirty = false
	return nil
}

// PurgeExpired deletes all sessions whose expiry has passed and returns
// the number of rows removed.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
