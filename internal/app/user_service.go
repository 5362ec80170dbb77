package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trivia-service/internal/auth"
	"trivia-service/internal/domain"
)

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// UserService creates and authenticates users.
type UserService struct {
	store    Store
	digester *auth.Digester
	tokens   TokenIssuer
	domain   string
}

// NewUserService builds the service. emailDomain is appended to generated addresses.
func NewUserService(store Store, digester *auth.Digester, tokens TokenIssuer, emailDomain string) *UserService {
	return &UserService{store: store, digester: digester, tokens: tokens, domain: emailDomain}
}

// Authenticated is a user together with a fresh session token.
type Authenticated struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a user with a password.
func (s *UserService) Register(ctx context.Context, email, password, name string) (Authenticated, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Authenticated{}, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Authenticated{}, err
	}
	digest := s.digester.Digest(email)
	user := &domain.User{Email: email, EmailDigest: &digest, PasswordHash: &hash}
	if name != "" {
		user.Name = &name
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return Authenticated{}, err
	}
	return s.authenticated(user)
}

// Login checks the password of the user registered with email.
func (s *UserService) Login(ctx context.Context, email, password string) (Authenticated, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = tx.UserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return Authenticated{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Authenticated{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return Authenticated{}, domain.ErrInvalidCredentials
	}
	return s.authenticated(user)
}

// Signed returns the user identified by the digests of originalEmail and token,
// creating it on first sight. The plain email is never stored.
func (s *UserService) Signed(ctx context.Context, originalEmail, token string) (Authenticated, error) {
	if originalEmail == "" || token == "" {
		return Authenticated{}, fmt.Errorf("%w: email and token are required", domain.ErrInvalidInput)
	}
	emailDigest := s.digester.Digest(strings.ToLower(originalEmail))
	tokenDigest := s.digester.Digest(token)

	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.UserByDigests(ctx, emailDigest, tokenDigest)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		user = &domain.User{
			Email:       fmt.Sprintf("%s@%s", emailDigest, s.domain),
			EmailDigest: &emailDigest,
			TokenDigest: &tokenDigest,
		}
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return Authenticated{}, err
	}
	return s.authenticated(user)
}

// Unsigned creates an anonymous user.
func (s *UserService) Unsigned(ctx context.Context) (Authenticated, error) {
	user := &domain.User{
		Email: fmt.Sprintf("uns-%s@%s", strings.ReplaceAll(uuid.NewString(), "-", ""), s.domain),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		return Authenticated{}, err
	}
	return s.authenticated(user)
}

func (s *UserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", domain.ErrInvalidInput)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.PasswordHash != nil && !auth.CheckPassword(user.PasswordHash, oldPassword) {
			return domain.ErrInvalidCredentials
		}
		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return err
		}
		user.PasswordHash = &hash
		return tx.UpdateUser(ctx, user)
	})
}

func (s *UserService) Rename(ctx context.Context, userID int64, name string) (*domain.User, error) {
	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if user, err = tx.UserByID(ctx, userID); err != nil {
			return err
		}
		user.Name = &name
		return tx.UpdateUser(ctx, user)
	})
	return user, err
}

// Delete removes the user along with its reactions and rankings.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteUser(ctx, userID)
	})
}

func (s *UserService) Get(ctx context.Context, userID int64) (*domain.User, error) {
	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = tx.UserByID(ctx, userID)
		return err
	})
	return user, err
}

func (s *UserService) authenticated(user *domain.User) (Authenticated, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Authenticated{}, fmt.Errorf("issue token: %w", err)
	}
	return Authenticated{User: user, Token: token}, nil
}
