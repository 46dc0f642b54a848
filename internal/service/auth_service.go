package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taglens/internal/config"
	"taglens/internal/ids"
	"taglens/internal/models"
	"taglens/internal/repository"
	"taglens/internal/security"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByTokenHash(ctx context.Context, tokenHash []byte) (models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeByTokenHash(ctx context.Context, tokenHash []byte) error
	Touch(ctx context.Context, id string, ip string, userAgent string) error
}

type LoginThrottle interface {
	Allow(ctx context.Context, ip string) (bool, error)
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	throttle LoginThrottle
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	throttle LoginThrottle,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		throttle: throttle,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if err := validateRegistration(input); err != nil {
		return models.User{}, err
	}

	// Friendly pre-checks; the unique constraints still win under races.
	if _, err := s.users.FindByUsername(ctx, input.Username); err == nil {
		return models.User{}, ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}
	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.User{}, ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserDuplicate) {
			return models.User{}, ErrDuplicateUser
		}
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

func validateRegistration(input RegisterInput) error {
	switch {
	case len(input.Username) < 3:
		return invalidInput("username must be at least 3 characters")
	case len(input.Username) > 50:
		return invalidInput("username must be at most 50 characters")
	case input.Email == "" || !strings.Contains(input.Email, "@") || len(input.Email) > 254:
		return invalidInput("a valid email address is required")
	case len(input.Password) < 8:
		return invalidInput("password must be at least 8 characters")
	case input.Password != input.ConfirmPassword:
		return invalidInput("passwords do not match")
	}
	return nil
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string

	// PriorToken is the session cookie the client presented on the login
	// request, if any. Logging in retires it so one browser holds one
	// usable session.
	PriorToken string
}

type LoginResult struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, input.IPAddress)
		if err != nil {
			s.log.Warn().Err(err).Msg("login throttle unavailable")
		}
		if !ok {
			return LoginResult{}, ErrTooManyAttempts
		}
	}

	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, tokenHash, err := security.GenerateSessionToken()
	if err != nil {
		return LoginResult{}, err
	}

	session := models.Session{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		ExpiresAt: time.Now().Add(s.cfg.Session.TTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return LoginResult{}, err
	}

	if input.PriorToken != "" {
		if err := s.sessions.RevokeByTokenHash(ctx, security.HashSessionToken(input.PriorToken)); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("revoke prior session failed")
		}
	}

	s.log.Info().Str("user_id", user.ID).Str("session_id", session.ID).Msg("user logged in")
	return LoginResult{
		User:      user,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// ValidateSession resolves a presented token to its user. Every failure mode
// collapses to ErrUnauthenticated; callers never learn whether the token was
// unknown, revoked or expired. Expired sessions are revoked in place, which
// is the only cleanup the session table gets.
func (s *AuthService) ValidateSession(ctx context.Context, token string, ip string, userAgent string) (models.User, models.Session, error) {
	if token == "" {
		return models.User{}, models.Session{}, ErrUnauthenticated
	}

	session, err := s.sessions.FindByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.User{}, models.Session{}, ErrUnauthenticated
		}
		return models.User{}, models.Session{}, err
	}

	if session.RevokedAt != nil {
		return models.User{}, models.Session{}, ErrUnauthenticated
	}
	if !session.ExpiresAt.After(time.Now()) {
		if err := s.sessions.Revoke(ctx, session.ID); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("revoke expired session failed")
		}
		return models.User{}, models.Session{}, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, models.Session{}, ErrUnauthenticated
		}
		return models.User{}, models.Session{}, err
	}

	if err := s.sessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", session.ID).Msg("session touch failed")
	}

	return user, session, nil
}

// Logout revokes the session behind token. Unknown and already-revoked
// tokens are fine; logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeByTokenHash(ctx, security.HashSessionToken(token))
}
