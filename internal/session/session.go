package session

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// InputData is the transient form-echo payload a failed POST stashes for
// the following GET. Password fields are deliberately never carried here.
type InputData struct {
	HasError     bool   `json:"has_error"`
	Message      string `json:"message"`
	Email        string `json:"email"`
	ConfirmEmail string `json:"confirm_email,omitempty"`
}

// Session is the explicit per-request session state. Handlers mutate it and
// must call Manager.Save before redirecting; nothing is persisted
// implicitly.
type Session struct {
	ID            string
	UserID        string
	UserEmail     string
	Authenticated bool

	input     *InputData
	persisted bool
	dirty     bool
}

// newSession returns a fresh, unpersisted session with a generated ID.
func newSession() *Session {
	return &Session{ID: ulid.Make().String()}
}

// Persisted reports whether the session has a row in the store.
func (s *Session) Persisted() bool {
	return s.persisted
}

// SetUser binds the session to an account and marks it authenticated
func (s *Session) SetUser(userID, email string) {
	s.UserID = userID
	s.UserEmail = email
	s.Authenticated = true
	s.dirty = true
}

// ClearUser removes the account binding and authentication flag. The
// session row itself stays in the store until it expires.
func (s *Session) ClearUser() {
	s.UserID = ""
	s.UserEmail = ""
	s.Authenticated = false
	s.dirty = true
}

// StashInput stores a form-echo payload for the next request
func (s *Session) StashInput(data InputData) {
	s.input = &data
	s.dirty = true
}

// ConsumeInput returns the pending form-echo payload and clears it
func (s *Session) ConsumeInput() *InputData {
	data := s.input
	if data != nil {
		s.input = nil
		s.dirty = true
	}
	return data
}

// PeekInput returns the pending form-echo payload without clearing it
func (s *Session) PeekInput() *InputData {
	return s.input
}

func encodeInput(data *InputData) (*string, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session input data: %w", err)
	}
	encoded := string(raw)
	return &encoded, nil
}

func decodeInput(raw *string) (*InputData, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var data InputData
	if err := json.Unmarshal([]byte(*raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode session input data: %w", err)
	}
	return &data, nil
}
