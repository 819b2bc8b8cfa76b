package service

import (
	"context"
	"log/slog"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// AuthService handles registration and login, issuing session tokens.
type AuthService struct {
	authenticator *auth.Authenticator
	jwtManager    *auth.JWTManager
	store         storage.Store
}

// NewAuthService creates an AuthService.
func NewAuthService(store storage.Store, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		authenticator: auth.NewAuthenticator(authStorage{store}),
		jwtManager:    jwtManager,
		store:         store,
	}
}

// authStorage adapts the store's not-found errors to the nil-user contract
// the authenticator checks against.
type authStorage struct {
	storage.Store
}

func (a authStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := a.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Register creates an account and returns the user with a session token.
func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*models.User, string, error) {
	user, err := s.authenticator.Register(ctx, email, displayName, password)
	if err != nil {
		slog.Warn("registration failed", "email", email, "error", err)
		return nil, "", err
	}
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, "", err
	}
	slog.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns the user with a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		slog.Warn("login failed", "email", email, "error", err)
		return nil, "", err
	}
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
