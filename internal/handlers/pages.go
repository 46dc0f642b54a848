package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taglens/internal/middleware"
	"taglens/internal/security"
	"taglens/internal/service"
)

// ensureCSRF returns the double-submit token for embedding in forms, minting
// the cookie when the visitor does not have one yet.
func (h HandlerSet) ensureCSRF(c *gin.Context) string {
	if token, err := c.Cookie(middleware.CSRFCookie); err == nil && token != "" {
		return token
	}

	token, err := security.GenerateCSRFToken()
	if err != nil {
		h.log.Error().Err(err).Msg("generate csrf token failed")
		return ""
	}
	h.setCSRFCookie(c, token)
	return token
}

func (h HandlerSet) setCSRFCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CSRFCookie, token, int(h.cfg.Session.TTL.Seconds()), "/", "", h.cfg.Session.CookieSecure, false)
}

func (h HandlerSet) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.cfg.Session.TTL.Seconds()), "/", "", h.cfg.Session.CookieSecure, true)
}

func (h HandlerSet) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.cfg.Session.CookieSecure, true)
}

func (h HandlerSet) renderError(c *gin.Context, status int, title, message string) {
	c.HTML(status, "error.html", gin.H{
		"Title":   title,
		"Message": message,
	})
}

func (h HandlerSet) Home(c *gin.Context) {
	user, signedIn := currentUser(c)
	c.HTML(http.StatusOK, "home.html", gin.H{
		"User":     user,
		"SignedIn": signedIn,
		"CSRF":     h.ensureCSRF(c),
	})
}

func (h HandlerSet) RegisterForm(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{
		"Title": "Create an account",
		"CSRF":  h.ensureCSRF(c),
	})
}

func (h HandlerSet) RegisterSubmit(c *gin.Context) {
	input := service.RegisterInput{
		Username:        c.PostForm("username"),
		Email:           c.PostForm("email"),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("confirm_password"),
	}

	if _, err := h.authService.Register(c.Request.Context(), input); err != nil {
		status := http.StatusBadRequest
		message := "Registration failed. Please try again."
		switch {
		case errors.Is(err, service.ErrDuplicateUser):
			status = http.StatusConflict
			message = err.Error()
		case errors.Is(err, service.ErrInvalidInput):
			message = err.Error()
		default:
			status = http.StatusInternalServerError
			h.log.Error().Err(err).Msg("registration failed")
		}
		c.HTML(status, "register.html", gin.H{
			"Title":    "Create an account",
			"CSRF":     h.ensureCSRF(c),
			"Error":    message,
			"Username": input.Username,
			"Email":    input.Email,
		})
		return
	}

	c.Redirect(http.StatusSeeOther, "/login?registered=1")
}

func (h HandlerSet) LoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{
		"Title":      "Log in",
		"CSRF":       h.ensureCSRF(c),
		"Registered": c.Query("registered") == "1",
		"Next":       c.Query("next"),
	})
}

func (h HandlerSet) LoginSubmit(c *gin.Context) {
	email := c.PostForm("email")
	next := c.PostForm("next")
	priorToken, _ := c.Cookie(middleware.SessionCookie)

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:      email,
		Password:   c.PostForm("password"),
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
		PriorToken: priorToken,
	})
	if err != nil {
		status := http.StatusUnauthorized
		message := err.Error()
		switch {
		case errors.Is(err, service.ErrTooManyAttempts):
			status = http.StatusTooManyRequests
		case errors.Is(err, service.ErrInvalidCredentials):
		default:
			status = http.StatusInternalServerError
			message = "Login failed. Please try again."
			h.log.Error().Err(err).Msg("login failed")
		}
		c.HTML(status, "login.html", gin.H{
			"Title": "Log in",
			"CSRF":  h.ensureCSRF(c),
			"Error": message,
			"Email": email,
			"Next":  next,
		})
		return
	}

	h.setSessionCookie(c, result.Token)

	// Fresh CSRF token for the new session.
	if token, err := security.GenerateCSRFToken(); err == nil {
		h.setCSRFCookie(c, token)
	}

	c.Redirect(http.StatusSeeOther, safeNext(next))
}

// safeNext keeps post-login redirects on this site. Anything that is not a
// rooted local path falls back to the dashboard.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/dashboard"
	}
	return next
}

func (h HandlerSet) Logout(c *gin.Context) {
	token, _ := c.Cookie(middleware.SessionCookie)
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		h.log.Warn().Err(err).Msg("logout revoke failed")
	}

	h.clearSessionCookie(c)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h HandlerSet) Dashboard(c *gin.Context) {
	user, _ := currentUser(c)

	count, err := h.photoService.CountForUser(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("count photos failed")
		h.renderError(c, http.StatusInternalServerError, "Something went wrong", "Could not load your dashboard. Please try again.")
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Title":      "Dashboard",
		"User":       user,
		"SignedIn":   true,
		"CSRF":       h.ensureCSRF(c),
		"PhotoCount": count,
	})
}

func (h HandlerSet) Profile(c *gin.Context) {
	user, _ := currentUser(c)

	photos, err := h.photoService.List(c.Request.Context(), user.ID, c.Query("sort_by"), c.Query("order"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			h.renderError(c, http.StatusBadRequest, "Bad request", err.Error())
			return
		}
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("list photos failed")
		h.renderError(c, http.StatusInternalServerError, "Something went wrong", "Could not load your profile. Please try again.")
		return
	}

	c.HTML(http.StatusOK, "profile.html", gin.H{
		"Title":    "Your photos",
		"User":     user,
		"SignedIn": true,
		"CSRF":     h.ensureCSRF(c),
		"Photos":   photos,
		"Count":    len(photos),
		"SortBy":   c.DefaultQuery("sort_by", "uploaded"),
		"Order":    c.DefaultQuery("order", "desc"),
	})
}
