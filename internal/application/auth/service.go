package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aet-hub/aet-hub/internal/apperr"
	domainSession "github.com/aet-hub/aet-hub/internal/domain/session"
	domainUser "github.com/aet-hub/aet-hub/internal/domain/user"
)

var errBadCredentials = apperr.New(apperr.CodeUnauthorized, "invalid username or password")

// Service handles authentication.
type Service struct {
	userRepo       domainUser.Repository
	sessionRepo    domainSession.Repository
	sessionTTL     time.Duration
	bootstrapToken string
	logger         zerolog.Logger
}

// NewService creates an auth service. An empty bootstrapToken disables Bootstrap.
func NewService(userRepo domainUser.Repository, sessionRepo domainSession.Repository, sessionTTL time.Duration, bootstrapToken string, logger zerolog.Logger) *Service {
	return &Service{
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		sessionTTL:     sessionTTL,
		bootstrapToken: bootstrapToken,
		logger:         logger.With().Str("service", "auth").Logger(),
	}
}

// LoginResult contains login response.
type LoginResult struct {
	User    *domainUser.User
	Session *domainSession.Session
	Token   string
}

// Login authenticates a user and creates a session.
func (s *Service) Login(ctx context.Context, username, password string, userAgent, ipAddress *string) (*LoginResult, error) {
	username = domainUser.NormalizeUsername(username)
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !domainUser.VerifyPassword(u.PasswordHash, password) {
		return nil, errBadCredentials
	}
	if !u.IsActive() {
		return nil, apperr.New(apperr.CodeForbidden, "user is disabled")
	}
	return s.openSession(ctx, u, userAgent, ipAddress)
}

// Bootstrap creates the first administrator. It only works while no user exists and the
// caller presents the configured bootstrap token.
func (s *Service) Bootstrap(ctx context.Context, token, username, password, fullName string) (*LoginResult, error) {
	if s.bootstrapToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.bootstrapToken)) != 1 {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid bootstrap token")
	}
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.New(apperr.CodeForbidden, "bootstrap already completed")
	}
	username = domainUser.NormalizeUsername(username)
	if err := domainUser.ValidateUsername(username); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
	}
	if err := domainUser.ValidatePassword(password, username); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, err.Error())
	}
	hash, err := domainUser.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domainUser.User{
		UserID:       uuid.New(),
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         domainUser.RoleAdmin,
		Status:       domainUser.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID.String()).Msg("bootstrap administrator created")
	return s.openSession(ctx, u, nil, nil)
}

// Authenticate validates a session token and returns the user.
func (s *Service) Authenticate(ctx context.Context, token string) (*domainUser.User, *domainSession.Session, error) {
	if token == "" {
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "missing token")
	}
	sess, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "session not found")
	}
	if sess.IsExpired(time.Now().UTC()) {
		_ = s.sessionRepo.DeleteByID(ctx, sess.SessionID)
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "session expired")
	}
	u, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil || !u.IsActive() {
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "user not active")
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sess.SessionID)
	return u, sess, nil
}

// Logout deletes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessionRepo.DeleteByTokenHash(ctx, hashToken(token))
}

// PurgeExpired removes expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("expired sessions purged")
	}
	return n, nil
}

func (s *Service) openSession(ctx context.Context, u *domainUser.User, userAgent, ipAddress *string) (*LoginResult, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	sess := domainSession.New(u.UserID, hashToken(token), time.Now().UTC(), s.sessionTTL, userAgent, ipAddress)
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID.String()).Msg("user login")
	return &LoginResult{User: u, Session: sess, Token: token}, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
