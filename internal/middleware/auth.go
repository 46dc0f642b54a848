package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"taglens/internal/models"
)

// Cookie and header names shared between the middleware and the handlers
// that set them.
const (
	SessionCookie = "taglens_session"
	CSRFCookie    = "taglens_csrf"
	CSRFHeader    = "X-CSRF-Token"
	CSRFField     = "csrf_token"
)

// Context keys populated by middleware.
const (
	CtxUser      = "current_user"
	CtxSession   = "current_session"
	CtxToken     = "session_token"
	CtxRequestID = "request_id"
)

type SessionValidator interface {
	ValidateSession(ctx context.Context, token string, ip string, userAgent string) (models.User, models.Session, error)
}

// AuthAPI guards JSON routes: a missing or dead session is a 401, and the
// client is expected to go through the login flow again.
func AuthAPI(auth SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !resolveSession(c, auth) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// AuthPage guards HTML routes: browsers get bounced to the login form with
// the original destination preserved in ?next=.
func AuthPage(auth SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !resolveSession(c, auth) {
			next := url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusSeeOther, "/login?next="+next)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth resolves the session when one is presented but never rejects.
// Public pages use it to swap their navigation for signed-in visitors.
func OptionalAuth(auth SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolveSession(c, auth)
		c.Next()
	}
}

func resolveSession(c *gin.Context, auth SessionValidator) bool {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		return false
	}

	user, session, err := auth.ValidateSession(c.Request.Context(), token, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		return false
	}

	c.Set(CtxUser, user)
	c.Set(CtxSession, session)
	c.Set(CtxToken, token)
	return true
}
