package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gatehouse-dev/gatehouse/internal/models"
)

func (s *Server) welcome(c *gin.Context) {
	ident := GetIdentity(c)
	c.HTML(http.StatusOK, "welcome.html", gin.H{"isAuth": ident.IsAuth})
}

// profile requires an authenticated session
func (s *Server) profile(c *gin.Context) {
	ident := GetIdentity(c)
	if !ident.IsAuth {
		c.HTML(http.StatusUnauthorized, "401.html", nil)
		return
	}

	c.HTML(http.StatusOK, "profile.html", gin.H{"email": ident.Email})
}

// admin requires the admin flag from the identity middleware and then
// re-verifies it against a fresh read of the user record. The double-check
// is what catches a session whose underlying admin grant was revoked.
func (s *Server) admin(c *gin.Context) {
	ident := GetIdentity(c)
	if !ident.IsAuth {
		c.HTML(http.StatusUnauthorized, "401.html", nil)
		return
	}
	if !ident.IsAdmin {
		c.HTML(http.StatusForbidden, "403.html", nil)
		return
	}

	sess, _ := CurrentSession(c)

	var user models.User
	if err := models.FindByID(s.db, sess.UserID, &user); err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to re-verify admin user")
		}
		c.HTML(http.StatusForbidden, "403.html", nil)
		return
	}
	if !user.IsAdmin {
		c.HTML(http.StatusForbidden, "403.html", nil)
		return
	}

	c.HTML(http.StatusOK, "admin.html", gin.H{"email": user.Email})
}
