package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taglens/internal/config"
	"taglens/internal/middleware"
	"taglens/internal/models"
	"taglens/internal/service"
	"taglens/internal/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- fakes ----

type fakeAuth struct {
	registerUser models.User
	registerErr  error
	lastRegister service.RegisterInput

	loginResult service.LoginResult
	loginErr    error
	lastLogin   service.LoginInput

	// sessions maps a raw token to the user it authenticates.
	sessions map[string]models.User

	logoutTokens []string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{sessions: map[string]models.User{}}
}

func (f *fakeAuth) Register(ctx context.Context, input service.RegisterInput) (models.User, error) {
	f.lastRegister = input
	return f.registerUser, f.registerErr
}

func (f *fakeAuth) Login(ctx context.Context, input service.LoginInput) (service.LoginResult, error) {
	f.lastLogin = input
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) ValidateSession(ctx context.Context, token string, ip string, userAgent string) (models.User, models.Session, error) {
	user, ok := f.sessions[token]
	if !ok {
		return models.User{}, models.Session{}, service.ErrUnauthenticated
	}
	return user, models.Session{ID: "sess-1", UserID: user.ID}, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	f.logoutTokens = append(f.logoutTokens, token)
	delete(f.sessions, token)
	return nil
}

type deleteCall struct {
	userID  string
	photoID string
	confirm bool
}

type fakePhotoLib struct {
	created    models.Photo
	createErr  error
	lastCreate service.CreatePhotoInput

	photos  []models.Photo
	listErr error

	count    int
	countErr error

	downloadPhoto models.Photo
	downloadData  []byte
	downloadErr   error

	viewURL string
	viewErr error

	thumb    []byte
	thumbErr error

	deleteErr  error
	lastDelete deleteCall
}

func (f *fakePhotoLib) Create(ctx context.Context, input service.CreatePhotoInput) (models.Photo, error) {
	f.lastCreate = input
	return f.created, f.createErr
}

func (f *fakePhotoLib) List(ctx context.Context, userID string, sortBy, order string) ([]models.Photo, error) {
	return f.photos, f.listErr
}

func (f *fakePhotoLib) CountForUser(ctx context.Context, userID string) (int, error) {
	return f.count, f.countErr
}

func (f *fakePhotoLib) Download(ctx context.Context, userID, photoID string) (models.Photo, []byte, error) {
	if f.downloadErr != nil {
		return models.Photo{}, nil, f.downloadErr
	}
	return f.downloadPhoto, f.downloadData, nil
}

func (f *fakePhotoLib) ViewURL(ctx context.Context, userID, photoID string) (string, error) {
	return f.viewURL, f.viewErr
}

func (f *fakePhotoLib) Thumbnail(ctx context.Context, userID, photoID string, size int) ([]byte, error) {
	if f.thumbErr != nil {
		return nil, f.thumbErr
	}
	return f.thumb, nil
}

func (f *fakePhotoLib) Delete(ctx context.Context, userID, photoID string, confirm bool) error {
	f.lastDelete = deleteCall{userID: userID, photoID: photoID, confirm: confirm}
	return f.deleteErr
}

// ---- helpers ----

func testUser() models.User {
	return models.User{
		ID:        "user-1",
		Username:  "alice",
		Email:     "alice@example.com",
		CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func newTestRouter(t *testing.T, auth Authenticator, photos PhotoLibrary) *gin.Engine {
	t.Helper()

	engine := gin.New()
	engine.SetHTMLTemplate(web.Templates())

	hs := HandlerSet{
		log:          zerolog.Nop(),
		cfg:          &config.AppConfig{Session: config.SessionConfig{TTL: time.Hour}},
		authService:  auth,
		photoService: photos,
	}
	hs.Register(&engine.RouterGroup)
	return engine
}

func doRequest(engine *gin.Engine, method, target string, body io.Reader, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func withCookie(name, value string) func(*http.Request) {
	return func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func withHeader(name, value string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set(name, value)
	}
}

// withSession presents both the session cookie and a valid CSRF pair, which
// is the state a signed-in browser is in.
func withSession(token string) []func(*http.Request) {
	return []func(*http.Request){
		withCookie(middleware.SessionCookie, token),
		withCookie(middleware.CSRFCookie, "csrf-ok"),
		withHeader(middleware.CSRFHeader, "csrf-ok"),
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ---- tests ----

func TestHealth_DegradedWithoutBackends(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error", body["database"])
	assert.Equal(t, "disabled", body["cache"])
}

func TestRoutes_CSRFRequiredOnMutations(t *testing.T) {
	auth := newFakeAuth()
	auth.sessions["tok"] = testUser()
	engine := newTestRouter(t, auth, &fakePhotoLib{})

	// JSON route: 403 with a JSON error.
	w := doRequest(engine, http.MethodDelete, "/api/photos", nil,
		withCookie(middleware.SessionCookie, "tok"))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CSRF validation failed")

	// Page route: 403 with an HTML error page.
	w = doRequest(engine, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Request blocked")
}

func TestRoutes_UnknownPath(t *testing.T) {
	engine := newTestRouter(t, newFakeAuth(), &fakePhotoLib{})

	w := doRequest(engine, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
