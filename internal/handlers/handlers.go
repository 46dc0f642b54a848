package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taglens/internal/config"
	"taglens/internal/middleware"
	"taglens/internal/models"
	"taglens/internal/repository"
	"taglens/internal/service"
	"taglens/internal/throttle"
)

// Authenticator and PhotoLibrary are the service seams the handlers consume;
// tests substitute fakes behind them.
type Authenticator interface {
	Register(ctx context.Context, input service.RegisterInput) (models.User, error)
	Login(ctx context.Context, input service.LoginInput) (service.LoginResult, error)
	ValidateSession(ctx context.Context, token string, ip string, userAgent string) (models.User, models.Session, error)
	Logout(ctx context.Context, token string) error
}

type PhotoLibrary interface {
	Create(ctx context.Context, input service.CreatePhotoInput) (models.Photo, error)
	List(ctx context.Context, userID string, sortBy, order string) ([]models.Photo, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	Download(ctx context.Context, userID, photoID string) (models.Photo, []byte, error)
	ViewURL(ctx context.Context, userID, photoID string) (string, error)
	Thumbnail(ctx context.Context, userID, photoID string, size int) ([]byte, error)
	Delete(ctx context.Context, userID, photoID string, confirm bool) error
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	authService  Authenticator
	photoService PhotoLibrary
	db           *pgxpool.Pool
	cache        *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store service.ObjectStorage, captioner service.Captioner, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	limiter := throttle.NewLoginLimiter(cache, cfg.Throttle.LoginAttempts, cfg.Throttle.LoginWindow)
	auth := service.NewAuthService(userRepo, sessionRepo, limiter, cfg, log)
	photos := service.NewPhotoService(photoRepo, store, captioner, cfg, log)

	return HandlerSet{
		log:          log,
		cfg:          cfg,
		authService:  auth,
		photoService: photos,
		db:           db,
		cache:        cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	pages := router.Group("/", middleware.CSRF())
	{
		public := pages.Group("/", middleware.OptionalAuth(h.authService))
		public.GET("/", h.Home)
		public.GET("/register", h.RegisterForm)
		public.POST("/register", h.RegisterSubmit)
		public.GET("/login", h.LoginForm)
		public.POST("/login", h.LoginSubmit)
		public.POST("/logout", h.Logout)

		private := pages.Group("/", middleware.AuthPage(h.authService))
		private.GET("/dashboard", h.Dashboard)
		private.GET("/profile", h.Profile)
	}

	api := router.Group("/api", middleware.CSRF(), middleware.AuthAPI(h.authService))
	{
		api.GET("/profile", h.APIProfile)
		api.POST("/photos", h.UploadPhoto)
		api.GET("/photos/download", h.DownloadPhoto)
		api.GET("/photos/view", h.ViewPhoto)
		api.GET("/photos/thumb", h.ThumbPhoto)
		api.DELETE("/photos", h.DeletePhoto)
	}
}

func currentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(middleware.CtxUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// writeServiceError maps service sentinels onto the JSON error contract.
// Unrecognized errors are logged and reported as a bare 500 so internals
// never leak to clients.
func (h HandlerSet) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConfirmationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateUser):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
