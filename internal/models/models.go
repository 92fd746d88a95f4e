package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User represents a local account in the credential store
type User struct {
	BaseModel
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	IsAdmin      bool      `json:"is_admin" gorm:"not null;default:false"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Session represents a persisted client session. The ID doubles as the
// opaque cookie value presented by the client. UserID and UserEmail are
// empty until a login binds the session to an account; InputData carries a
// transient form-echo payload between a failed POST and the following GET.
type Session struct {
	BaseModel
	UserID        string    `json:"user_id" gorm:"index"`
	UserEmail     string    `json:"user_email"`
	Authenticated bool      `json:"authenticated" gorm:"not null;default:false"`
	InputData     *string   `json:"input_data"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"index;not null"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&User{}, &Session{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
