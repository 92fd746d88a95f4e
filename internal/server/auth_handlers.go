package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/gatehouse-dev/gatehouse/internal/auth"
	"github.com/gatehouse-dev/gatehouse/internal/models"
	"github.com/gatehouse-dev/gatehouse/internal/session"
)

const (
	msgInvalidInput = "Invalid input"
	msgUserExists   = "User exists already!"
	msgLoginFailed  = "Could not log you in - please check your info"
)

// SignupForm represents the signup form fields
type SignupForm struct {
	Email        string `form:"email" validate:"required,emailat"`
	ConfirmEmail string `form:"confirm-email" validate:"required,eqfield=Email"`
	Password     string `form:"password" validate:"required,trimmin=6"`
}

// LoginForm represents the login form fields
type LoginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// redirectWithInput stashes a form-echo payload, persists the session and
// redirects. Every validation failure funnels through here so the write is
// always awaited before the client is sent on.
func (s *Server) redirectWithInput(c *gin.Context, sess *session.Session, data session.InputData, target string) {
	sess.StashInput(data)
	if err := s.saveSession(c, sess); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist session input data")
		c.HTML(http.StatusInternalServerError, "500.html", nil)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// getSignup renders the signup form, consuming and clearing any pending
// form-echo payload.
func (s *Server) getSignup(c *gin.Context) {
	sess, _ := CurrentSession(c)

	data := sess.ConsumeInput()
	if data == nil {
		data = &session.InputData{}
	} else if sess.Persisted() {
		// The echo is one-shot; persist the cleared state
		if err := s.saveSession(c, sess); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clear session input data")
			c.HTML(http.StatusInternalServerError, "500.html", nil)
			return
		}
	}

	c.HTML(http.StatusOK, "signup.html", gin.H{"inputData": data})
}

// getLogin renders the login form, reading (not clearing) any pending
// form-echo payload.
func (s *Server) getLogin(c *gin.Context) {
	sess, _ := CurrentSession(c)

	data := sess.PeekInput()
	if data == nil {
		data = &session.InputData{}
	}

	c.HTML(http.StatusOK, "login.html", gin.H{"inputData": data})
}

// postSignup validates the submitted form and creates the user record.
// Validation failures bounce back to the form with the entered emails;
// passwords are never echoed.
func (s *Server) postSignup(c *gin.Context) {
	sess, _ := CurrentSession(c)

	var form SignupForm
	if err := c.ShouldBind(&form); err != nil || s.validator.Struct(form) != nil {
		s.redirectWithInput(c, sess, session.InputData{
			HasError:     true,
			Message:      msgInvalidInput,
			Email:        form.Email,
			ConfirmEmail: form.ConfirmEmail,
		}, "/signup")
		return
	}

	// Fast path for the common duplicate case; the unique index on email is
	// what actually closes the check-then-insert race below
	var existing models.User
	err := s.db.Where("email = ?", form.Email).First(&existing).Error
	if err == nil {
		s.redirectWithInput(c, sess, session.InputData{
			HasError:     true,
			Message:      msgUserExists,
			Email:        form.Email,
			ConfirmEmail: form.ConfirmEmail,
		}, "/signup")
		return
	}
	if err != gorm.ErrRecordNotFound {
		s.logger.Error().Err(err).Msg("Failed to check for existing user")
		c.HTML(http.StatusInternalServerError, "500.html", nil)
		return
	}

	passwordHash, err := auth.HashPassword(form.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.HTML(http.StatusInternalServerError, "500.html", nil)
		return
	}

	user := &models.User{
		Email:        form.Email,
		PasswordHash: passwordHash,
	}

	if err := s.db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			// Lost a concurrent signup for the same email
			s.redirectWithInput(c, sess, session.InputData{
				HasError:     true,
				Message:      msgUserExists,
				Email:        form.Email,
				ConfirmEmail: form.ConfirmEmail,
			}, "/signup")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to create user")
		c.HTML(http.StatusInternalServerError, "500.html", nil)
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User signed up")

	c.Redirect(http.StatusFound, "/login")
}

// postLogin checks the submitted credentials and binds the session to the
// account on success.
func (s *Server) postLogin(c *gin.Context) {
	sess, _ := CurrentSession(c)

	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to bind login form")
	}

	// Kept for redisplay; overwritten below on failure, left stale on
	// success since the client is redirected away
	sess.StashInput(session.InputData{Email: form.Email})

	var user models.User
	err := s.db.Where("email = ?", form.Email).First(&user).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Error().Err(err).Msg("Failed to find user")
			c.HTML(http.StatusInternalServerError, "500.html", nil)
			return
		}
		s.redirectWithInput(c, sess, session.InputData{
			HasError: true,
			Message:  msgLoginFailed,
			Email:    form.Email,
		}, "/login")
		return
	}

	if err := auth.VerifyPassword(form.Password, user.PasswordHash); err != nil {
		if err != bcrypt.ErrMismatchedHashAndPassword {
			s.logger.Error().Err(err).Msg("Failed to verify password")
		}
		s.redirectWithInput(c, sess, session.InputData{
			HasError: true,
			Message:  msgLoginFailed,
			Email:    form.Email,
		}, "/login")
		return
	}

	sess.SetUser(user.ID, user.Email)
	if err := s.saveSession(c, sess); err != nil {
		// The user is not told why; they land back on the login form
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to persist authenticated session")
		c.Redirect(http.StatusFound, "/login")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")

	c.Redirect(http.StatusFound, "/profile")
}

// postLogout clears the session's authentication state. The write is
// awaited before redirecting; the session row stays until it expires.
func (s *Server) postLogout(c *gin.Context) {
	sess, _ := CurrentSession(c)

	sess.ClearUser()
	if sess.Persisted() {
		if err := s.saveSession(c, sess); err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist logout")
			c.HTML(http.StatusInternalServerError, "500.html", nil)
			return
		}
	}

	c.Redirect(http.StatusFound, "/")
}

// isDuplicateKey reports whether an insert failed on the unique email
// index. The glebarez driver does not translate constraint errors into
// gorm.ErrDuplicatedKey, so the sqlite error text is matched as well.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "email")
}
