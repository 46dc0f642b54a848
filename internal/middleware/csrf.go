package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taglens/internal/security"
)

// CSRF enforces the double-submit check on every state-changing method.
// The submitted copy may arrive as the X-CSRF-Token header (JSON clients)
// or the csrf_token form field (HTML forms); either must match the cookie.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		cookie, _ := c.Cookie(CSRFCookie)
		submitted := c.GetHeader(CSRFHeader)
		if submitted == "" {
			submitted = c.PostForm(CSRFField)
		}

		if !security.CSRFTokenMatches(cookie, submitted) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF validation failed"})
				return
			}
			c.HTML(http.StatusForbidden, "error.html", gin.H{
				"Title":   "Request blocked",
				"Message": "CSRF validation failed. Go back, reload the page and try again.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
