package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gatehouse-dev/gatehouse/internal/auth"
	"github.com/gatehouse-dev/gatehouse/internal/models"
	"github.com/gatehouse-dev/gatehouse/internal/session"
)

const (
	contextKeySession  = "session"
	contextKeyIdentity = "identity"
)

func setCurrentSession(c *gin.Context, sess *session.Session) {
	c.Set(contextKeySession, sess)
}

// CurrentSession returns the session attached to the request. The session
// middleware guarantees one is present on every page route.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	v, exists := c.Get(contextKeySession)
	if !exists {
		return nil, false
	}

	sess, ok := v.(*session.Session)
	return sess, ok
}

func setIdentity(c *gin.Context, ident *auth.Identity) {
	c.Set(contextKeyIdentity, ident)
}

// GetIdentity returns the resolved identity for the request. Anonymous
// requests yield a zero Identity.
func GetIdentity(c *gin.Context) auth.Identity {
	v, exists := c.Get(contextKeyIdentity)
	if !exists {
		return auth.Identity{}
	}

	ident, ok := v.(*auth.Identity)
	if !ok {
		return auth.Identity{}
	}
	return *ident
}

// sessionMiddleware resolves the session cookie to persisted session state
// and attaches it to the request context. Clients without a cookie, or with
// a stale one, get a fresh unpersisted session.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(s.config.Session.CookieName)
		if err != nil {
			id = ""
		}

		sess, err := s.sessions.Load(c.Request.Context(), id)
		if err != nil {
			// Treat an unreadable store like a missing session rather than
			// failing the whole request pipeline
			s.logger.Error().Err(err).Msg("Failed to load session")
			sess, _ = s.sessions.Load(c.Request.Context(), "")
		}

		setCurrentSession(c, sess)
		c.Next()
	}
}

// identityMiddleware annotates authenticated requests with read-only
// authorization flags. The user row is looked up fresh so the admin flag is
// never trusted from the session alone.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok || sess.UserID == "" || !sess.Authenticated {
			// Anonymous request - no annotation
			c.Next()
			return
		}

		ident := &auth.Identity{
			UserID: sess.UserID,
			Email:  sess.UserEmail,
			IsAuth: sess.Authenticated,
		}

		var user models.User
		if err := models.FindByID(s.db, sess.UserID, &user); err != nil {
			// A dangling session reference must not crash the request;
			// IsAuth stays as the session says, IsAdmin stays false
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to resolve session user")
			}
		} else {
			ident.IsAdmin = user.IsAdmin
		}

		setIdentity(c, ident)
		c.Next()
	}
}

// saveSession persists the session and, on its first save, hands the
// client its cookie.
func (s *Server) saveSession(c *gin.Context, sess *session.Session) error {
	wasNew := !sess.Persisted()

	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		return err
	}

	if wasNew {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     s.config.Session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(s.sessions.Lifetime().Seconds()),
			Secure:   s.config.Session.CookieSecure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return nil
}
