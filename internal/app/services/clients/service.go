// Package clients manages client accounts, the demand side of the
// marketplace.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrNotFound is returned when the client does not exist.
	ErrNotFound = errors.New("client not found")
	// ErrEmailTaken is returned when the registration email is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for registration input that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// RegisterInput carries the fields required to create a client account.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Service implements client account management.
type Service struct {
	store storage.ClientStore
	log   *logger.Logger
}

// New constructs a clients service.
func New(store storage.ClientStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("clients")
	}
	return &Service{store: store, log: log}
}

// Register creates a client account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (client.Client, error) {
	if err := validateRegister(in); err != nil {
		return client.Client{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return client.Client{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateClient(ctx, client.Client{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return client.Client{}, ErrEmailTaken
		}
		return client.Client{}, err
	}

	s.log.WithField("client_id", created.ID).Info("client registered")
	return created, nil
}

// VerifyCredentials checks the email and password pair and returns the
// matching client.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (client.Client, error) {
	c, err := s.store.GetClientByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return client.Client{}, ErrInvalidCredentials
		}
		return client.Client{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return client.Client{}, ErrInvalidCredentials
	}
	return c, nil
}

// Get returns the client by ID.
func (s *Service) Get(ctx context.Context, id string) (client.Client, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return client.Client{}, ErrNotFound
		}
		return client.Client{}, err
	}
	return c, nil
}

func validateRegister(in RegisterInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return nil
}
