// Package artists manages artist accounts: registration, credential
// verification and profile lookups.
package artists

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrNotFound is returned when the artist does not exist.
	ErrNotFound = errors.New("artist not found")
	// ErrEmailTaken is returned when the registration email is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput is returned for registration input that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// RegisterInput carries the fields required to create an artist account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service implements artist account management.
type Service struct {
	store         storage.ArtistStore
	signupCredits int64
	log           *logger.Logger
}

// New constructs an artists service. New accounts start with signupCredits
// credits.
func New(store storage.ArtistStore, signupCredits int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("artists")
	}
	if signupCredits < 0 {
		signupCredits = 0
	}
	return &Service{
		store:         store,
		signupCredits: signupCredits,
		log:           log,
	}
}

// Register creates an artist account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (artist.Artist, error) {
	if err := validateRegister(in); err != nil {
		return artist.Artist{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return artist.Artist{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateArtist(ctx, artist.Artist{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		Role:         artist.RoleArtist,
		Credits:      s.signupCredits,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return artist.Artist{}, ErrEmailTaken
		}
		return artist.Artist{}, err
	}

	s.log.WithField("artist_id", created.ID).Info("artist registered")
	return created, nil
}

// VerifyCredentials checks the email and password pair and returns the
// matching artist. Unknown email and wrong password produce the same error.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (artist.Artist, error) {
	a, err := s.store.GetArtistByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return artist.Artist{}, ErrInvalidCredentials
		}
		return artist.Artist{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return artist.Artist{}, ErrInvalidCredentials
	}
	return a, nil
}

// Get returns the artist by ID.
func (s *Service) Get(ctx context.Context, id string) (artist.Artist, error) {
	a, err := s.store.GetArtist(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return artist.Artist{}, ErrNotFound
		}
		return artist.Artist{}, err
	}
	return a, nil
}

// List returns all artists.
func (s *Service) List(ctx context.Context) ([]artist.Artist, error) {
	return s.store.ListArtists(ctx)
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
