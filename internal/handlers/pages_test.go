package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taglens/internal/middleware"
	"taglens/internal/models"
	"taglens/internal/service"
)

func postForm(engine *gin.Engine, target string, form url.Values, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// csrfForm returns form values carrying the CSRF echo, plus the cookie opt
// for the matching double-submit cookie.
func csrfForm(values url.Values) (url.Values, func(*http.Request)) {
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", "csrf-ok")
	return values, withCookie(middleware.CSRFCookie, "csrf-ok")
}

func responseCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHome(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome to TagLens")

	cookie := responseCookie(t, w, middleware.CSRFCookie)
	require.NotNil(t, cookie, "first visit mints the CSRF cookie")
	assert.NotEmpty(t, cookie.Value)
}

func TestHome_SignedIn(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/", nil,
		withCookie(middleware.SessionCookie, "tok"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Signed in as <strong>alice</strong>")

	cookie := responseCookie(t, w, middleware.CSRFCookie)
	require.NotNil(t, cookie)
	assert.Contains(t, w.Body.String(), cookie.Value, "logout form embeds the minted token")
}

func TestRegisterForm(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/register", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="csrf_token"`)
}

func TestRegisterSubmit_Success(t *testing.T) {
	auth := newFakeAuth()
	auth.registerUser = testUser()
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"username":         {"alice"},
		"email":            {"alice@example.com"},
		"password":         {"sufficiently long"},
		"confirm_password": {"sufficiently long"},
	})
	w := postForm(engine, "/register", form, cookie)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?registered=1", w.Header().Get("Location"))
	assert.Equal(t, "alice", auth.lastRegister.Username)
	assert.Equal(t, "alice@example.com", auth.lastRegister.Email)
	assert.Equal(t, "sufficiently long", auth.lastRegister.ConfirmPassword)
}

func TestRegisterSubmit_Duplicate(t *testing.T) {
	auth := newFakeAuth()
	auth.registerErr = service.ErrDuplicateUser
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"username":         {"taken-name"},
		"email":            {"taken@example.com"},
		"password":         {"12345678"},
		"confirm_password": {"12345678"},
	})
	w := postForm(engine, "/register", form, cookie)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
	// The form comes back pre-filled so the visitor only fixes what is wrong.
	assert.Contains(t, w.Body.String(), `value="taken-name"`)
	assert.Contains(t, w.Body.String(), `value="taken@example.com"`)
}

func TestLoginForm_AfterRegistration(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/login?registered=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Account created")
}

func TestLoginSubmit_Success(t *testing.T) {
	auth := newFakeAuth()
	auth.loginResult = service.LoginResult{
		User:      testUser(),
		Token:     "fresh-session-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"email":    {"alice@example.com"},
		"password": {"sufficiently long"},
	})
	w := postForm(engine, "/login", form, cookie)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	session := responseCookie(t, w, middleware.SessionCookie)
	require.NotNil(t, session)
	assert.Equal(t, "fresh-session-token", session.Value)
	assert.True(t, session.HttpOnly, "session cookie stays out of script reach")

	csrf := responseCookie(t, w, middleware.CSRFCookie)
	require.NotNil(t, csrf, "login rotates the CSRF token")
	assert.NotEqual(t, "csrf-ok", csrf.Value)
	assert.False(t, csrf.HttpOnly, "scripts must be able to echo the CSRF token")
}

func TestLoginSubmit_CarriesPriorSession(t *testing.T) {
	auth := newFakeAuth()
	auth.loginResult = service.LoginResult{User: testUser(), Token: "next-token"}
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"email":    {"alice@example.com"},
		"password": {"sufficiently long"},
	})
	w := postForm(engine, "/login", form, cookie,
		withCookie(middleware.SessionCookie, "stale-token"))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "stale-token", auth.lastLogin.PriorToken)
}

func TestLoginSubmit_NextRedirect(t *testing.T) {
	cases := []struct {
		name string
		next string
		want string
	}{
		{"local path", "/profile?sort_by=taken", "/profile?sort_by=taken"},
		{"empty", "", "/dashboard"},
		{"absolute url", "https://evil.example/", "/dashboard"},
		{"protocol relative", "//evil.example", "/dashboard"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := newFakeAuth()
			auth.loginResult = service.LoginResult{User: testUser(), Token: "tok"}
			engine := newTestRouter(t, auth, &fakePhotoLib{})

			form, cookie := csrfForm(url.Values{
				"email":    {"alice@example.com"},
				"password": {"sufficiently long"},
				"next":     {tc.next},
			})
			w := postForm(engine, "/login", form, cookie)

			require.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tc.want, w.Header().Get("Location"))
		})
	}
}

func TestLoginSubmit_BadCredentials(t *testing.T) {
	auth := newFakeAuth()
	auth.loginErr = service.ErrInvalidCredentials
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	})
	w := postForm(engine, "/login", form, cookie)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")
	assert.Nil(t, responseCookie(t, w, middleware.SessionCookie))
}

func TestLoginSubmit_Throttled(t *testing.T) {
	auth := newFakeAuth()
	auth.loginErr = service.ErrTooManyAttempts
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(url.Values{
		"email":    {"alice@example.com"},
		"password": {"whatever"},
	})
	w := postForm(engine, "/login", form, cookie)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many login attempts")
}

func TestLogout(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	form, cookie := csrfForm(nil)
	w := postForm(engine, "/logout", form, cookie,
		withCookie(middleware.SessionCookie, "tok"))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, []string{"tok"}, auth.logoutTokens)

	session := responseCookie(t, w, middleware.SessionCookie)
	require.NotNil(t, session)
	assert.Empty(t, session.Value)
	assert.Negative(t, session.MaxAge, "cookie must be expired")
}

func TestDashboard_RequiresLogin(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))
}

func TestDashboard(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	engine := newTestRouter(t, auth, &fakePhotoLib{count: 7})

	w := doRequest(engine, http.MethodGet, "/dashboard", nil,
		withCookie(middleware.SessionCookie, "tok"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello, alice")
	assert.Contains(t, w.Body.String(), "7 photos")
}

func TestProfile(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	photos := &fakePhotoLib{photos: []models.Photo{
		{
			ID:          "ph-1",
			UserID:      "user-1",
			Filename:    "sunset.jpg",
			Description: "A sunset over the harbour.",
			CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:        "ph-2",
			UserID:    "user-1",
			Filename:  "receipt.png",
			CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		},
	}}
	engine := newTestRouter(t, auth, photos)

	w := doRequest(engine, http.MethodGet, "/profile", nil,
		withCookie(middleware.SessionCookie, "tok"))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "sunset.jpg")
	assert.Contains(t, body, "A sunset over the harbour.")
	assert.Contains(t, body, "no description")
	assert.Contains(t, body, "2 photos")
}

func TestProfile_InvalidSort(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	photos := &fakePhotoLib{listErr: service.ErrInvalidInput}
	engine := newTestRouter(t, auth, photos)

	w := doRequest(engine, http.MethodGet, "/profile?sort_by=filename", nil,
		withCookie(middleware.SessionCookie, "tok"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Bad request")
}
