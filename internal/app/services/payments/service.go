// Package payments converts confirmed external payments into credit top-ups.
// Every top-up carries the processor's payment reference as an idempotency
// key, so a redelivered confirmation never credits twice.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/muse-link/muselink-backend/internal/app/metrics"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrArtistNotFound is returned when the credited artist does not exist.
	ErrArtistNotFound = errors.New("artist not found")
	// ErrDuplicateReference is returned when the payment reference was
	// already applied. The earlier top-up stands; nothing is credited.
	ErrDuplicateReference = errors.New("payment reference already applied")
	// ErrInvalidInput is returned for input that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// TopUpInput describes a confirmed payment to convert into credits.
type TopUpInput struct {
	ArtistID  string
	Reference string
	Credits   int64
}

// Service applies payment-backed credit top-ups.
type Service struct {
	store storage.UnlockStore
	log   *logger.Logger
}

// New constructs a payments service.
func New(store storage.UnlockStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{store: store, log: log}
}

// TopUp credits the artist inside one transaction: record the payment
// reference, then raise the balance under the artist row lock. Returns the
// post-top-up balance.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (int64, error) {
	if err := validateTopUp(in); err != nil {
		return 0, err
	}

	var balance int64
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		exists, err := tx.TopUpExists(ctx, in.Reference)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateReference
		}

		a, err := tx.ArtistForUpdate(ctx, in.ArtistID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrArtistNotFound
			}
			return err
		}

		if err := tx.InsertTopUp(ctx, in.Reference, in.ArtistID, in.Credits); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrDuplicateReference
			}
			return err
		}

		balance = a.Credits + in.Credits
		return tx.SetArtistCredits(ctx, in.ArtistID, balance)
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordTopUp(in.Credits)
	s.log.WithField("artist_id", in.ArtistID).
		WithField("reference", in.Reference).
		WithField("credits", in.Credits).
		WithField("balance", balance).
		Info("payment applied")
	return balance, nil
}

func validateTopUp(in TopUpInput) error {
	if strings.TrimSpace(in.ArtistID) == "" {
		return fmt.Errorf("%w: artist id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Reference) == "" {
		return fmt.Errorf("%w: payment reference is required", ErrInvalidInput)
	}
	if in.Credits <= 0 {
		return fmt.Errorf("%w: credits must be positive", ErrInvalidInput)
	}
	return nil
}
