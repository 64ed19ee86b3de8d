// Package auth implements user accounts and token issuance: bcrypt
// password hashes, HS256 session JWTs, and short-lived view tokens for
// unauthenticated inline embedding.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-chi/jwtauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/objectkey"
)

const (
	bcryptCost = 10

	// DefaultSessionTTL matches the original one-hour session policy.
	DefaultSessionTTL = time.Hour

	// DefaultViewTTL bounds the window in which a view token can be
	// redeemed; deliberately much shorter than a session.
	DefaultViewTTL = 10 * time.Minute

	minPasswordLength = 8
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ErrDuplicateUser is returned by repositories when the email is taken.
var ErrDuplicateUser = errors.New("user already exists")

// UserRepository persists user accounts keyed by email.
type UserRepository interface {
	Create(ctx context.Context, user *picvault.User) error
	Get(ctx context.Context, email string) (*picvault.User, error)
}

// Config options for the auth service.
type Config struct {
	// JWTSecret signs session tokens.
	JWTSecret string

	// ViewSecret signs view tokens. When empty, a derived secret keeps
	// the two token kinds in distinct signing contexts.
	ViewSecret string

	SessionTTL time.Duration
	ViewTTL    time.Duration
}

// Service contains account and token logic.
type Service struct {
	repo        UserRepository
	sessionAuth *jwtauth.JWTAuth
	viewAuth    *jwtauth.JWTAuth
	sessionTTL  time.Duration
	viewTTL     time.Duration
	logger      *slog.Logger
}

// NewService creates an auth service.
func NewService(repo UserRepository, cfg Config, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("user repository is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if cfg.ViewSecret == "" {
		// A session token must never validate as a view token.
		cfg.ViewSecret = cfg.JWTSecret + ":view"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = DefaultViewTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:        repo,
		sessionAuth: jwtauth.New("HS256", []byte(cfg.JWTSecret), nil),
		viewAuth:    jwtauth.New("HS256", []byte(cfg.ViewSecret), nil),
		sessionTTL:  cfg.SessionTTL,
		viewTTL:     cfg.ViewTTL,
		logger:      logger,
	}, nil
}

// SessionAuth exposes the session token verifier for HTTP middleware.
func (s *Service) SessionAuth() *jwtauth.JWTAuth {
	return s.sessionAuth
}

// Register creates a new account after validating the email format and the
// minimum password length.
func (s *Service) Register(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password required", picvault.ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", picvault.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", picvault.ErrValidation, minPasswordLength)
	}

	if _, err := s.repo.Get(ctx, email); err == nil {
		return fmt.Errorf("%w: user already exists", picvault.ErrValidation)
	} else if !errors.Is(err, picvault.ErrNotFound) {
		return fmt.Errorf("%w: user lookup failed", picvault.ErrDependency)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &picvault.User{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return fmt.Errorf("%w: user already exists", picvault.ErrValidation)
		}
		return fmt.Errorf("%w: user create failed", picvault.ErrDependency)
	}

	s.logger.Info("user created", "email", email)
	return nil
}

// Login verifies credentials and issues a session token. Missing user and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.Get(ctx, email)
	if err != nil {
		if errors.Is(err, picvault.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid credentials", picvault.ErrAuth)
		}
		return "", fmt.Errorf("%w: user lookup failed", picvault.ErrDependency)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid credentials", picvault.ErrAuth)
	}

	claims := map[string]interface{}{"user": user.Email}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, s.sessionTTL)

	_, tokenString, err := s.sessionAuth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("encode session token: %w", err)
	}
	return tokenString, nil
}

// IssueViewToken mints a short-lived token bound to one object key, for
// embedding in contexts without session storage. Ownership is enforced at
// issuance: the token widens the trust boundary only for the caller's own
// objects.
func (s *Service) IssueViewToken(owner, key string) (string, error) {
	if !objectkey.BelongsTo(key, owner) {
		return "", fmt.Errorf("%w: key outside caller prefix", picvault.ErrForbidden)
	}

	claims := map[string]interface{}{"key": key}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, s.viewTTL)

	_, tokenString, err := s.viewAuth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("encode view token: %w", err)
	}
	return tokenString, nil
}

// VerifyViewToken validates signature and expiry and checks that the token
// was minted for exactly the requested key.
func (s *Service) VerifyViewToken(tokenString, key string) error {
	if tokenString == "" {
		return fmt.Errorf("%w: missing view token", picvault.ErrAuth)
	}

	token, err := jwtauth.VerifyToken(s.viewAuth, tokenString)
	if err != nil {
		return fmt.Errorf("%w: invalid or expired view token", picvault.ErrAuth)
	}

	claim, ok := token.Get("key")
	if !ok {
		return fmt.Errorf("%w: malformed view token", picvault.ErrAuth)
	}
	if tokenKey, ok := claim.(string); !ok || tokenKey != key {
		return fmt.Errorf("%w: view token does not match object", picvault.ErrAuth)
	}
	return nil
}
