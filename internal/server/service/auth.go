package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filedrop/internal/server/database"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session has expired")
)

// AdminStore is the persistence surface for administrator accounts.
type AdminStore interface {
	Create(ctx context.Context, admin *database.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*database.AdminUser, error)
	GetByID(ctx context.Context, id string) (*database.AdminUser, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int64, error)
}

// SessionStore is the persistence surface for admin sessions.
type SessionStore interface {
	Create(ctx context.Context, s *database.Session) error
	Get(ctx context.Context, token string) (*database.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthService authenticates administrators and manages their sessions.
// Session state lives entirely in the store; the service holds nothing
// mutable, so it stays correct with multiple process instances.
type AuthService struct {
	admins   AdminStore
	sessions SessionStore
	lifetime time.Duration
	cost     int

	// dummyHash is compared against when the username does not exist, so
	// a failed login costs the same whether or not the account is real.
	dummyHash []byte
}

// NewAuthService creates a new auth service. Session lifetime is the fixed
// absolute validity window for every minted session; cost is the bcrypt
// cost factor for password hashes.
func NewAuthService(admins AdminStore, sessions SessionStore, lifetime time.Duration, cost int) (*AuthService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	filler, err := generateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to seed dummy hash: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(filler), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash: %w", err)
	}

	return &AuthService{
		admins:    admins,
		sessions:  sessions,
		lifetime:  lifetime,
		cost:      cost,
		dummyHash: dummy,
	}, nil
}

// Authenticate verifies the credentials and, on success, mints and persists
// a new session. Unknown usernames and wrong passwords are indistinguishable
// to the caller, in both answer and cost.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*database.Session, error) {
	admin, err := s.admins.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAdminNotFound) {
			// Burn the same hashing work as a real comparison.
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		slog.Warn("password verification failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	token, err := generateSecureToken(48)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now().UTC()
	session := &database.Session{
		Token:     token,
		AdminID:   admin.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	slog.Info("admin logged in", "admin_id", admin.ID, "username", username)
	return session, nil
}

// Validate resolves a session token to an admin ID. Sessions have a fixed
// absolute lifetime; validation never extends it. Expired rows are removed
// opportunistically.
func (s *AuthService) Validate(ctx context.Context, token string) (string, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return "", ErrSessionNotFound
		}
		return "", err
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.sessions.Delete(ctx, token); err != nil {
			slog.Warn("failed to remove expired session", "error", err)
		}
		return "", ErrSessionExpired
	}

	return session.AdminID, nil
}

// Revoke deletes a session. Revoking a nonexistent or already-expired
// token is not an error.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ChangePassword re-verifies the old password before replacing the hash.
// Other live sessions of the same admin are left untouched.
func (s *AuthService) ChangePassword(ctx context.Context, adminID, oldPassword, newPassword string) error {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, database.ErrAdminNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(oldPassword))
			return ErrInvalidCredentials
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if err := s.admins.UpdatePassword(ctx, adminID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("admin password changed", "admin_id", adminID)
	return nil
}

// EnsureDefaultAdmin creates the bootstrap administrator account when no
// admin exists yet, so a fresh deployment is reachable.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	count, err := s.admins.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admin users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash default admin password: %w", err)
	}

	admin := &database.AdminUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	slog.Info("created default admin user", "username", username)
	return nil
}
