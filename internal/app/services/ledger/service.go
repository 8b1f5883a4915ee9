// Package ledger guards artist credit balances. It is the only writer of the
// credits column; every mutation happens under an exclusive row lock inside a
// storage transaction, so concurrent spends can never drive a balance
// negative or mint credits out of thin air.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrArtistNotFound is returned when the debited artist does not exist.
	ErrArtistNotFound = errors.New("artist not found")
	// ErrInsufficientCredits is returned when the balance is zero. Retrying
	// without a top-up cannot succeed.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Service performs atomic credit operations.
type Service struct {
	artists storage.ArtistStore
	store   storage.UnlockStore
	log     *logger.Logger
}

// New constructs a ledger service.
func New(artists storage.ArtistStore, store storage.UnlockStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{
		artists: artists,
		store:   store,
		log:     log,
	}
}

// DebitOne removes one credit from the artist inside the supplied transaction
// scope. The artist row lock taken here is held until the enclosing
// transaction commits, so the read-and-decide step cannot race another debit:
// of two concurrent callers observing balance 1, only the first to acquire
// the lock succeeds. Returns the post-debit balance.
func (s *Service) DebitOne(ctx context.Context, tx storage.Tx, artistID string) (int64, error) {
	a, err := tx.ArtistForUpdate(ctx, artistID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrArtistNotFound
		}
		return 0, err
	}

	if a.Credits <= 0 {
		return 0, ErrInsufficientCredits
	}

	balance := a.Credits - 1
	if err := tx.SetArtistCredits(ctx, artistID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// TopUp adds credits to an artist's balance in its own transaction, applied
// with the same lock discipline as debits. Callers wanting idempotency per
// external payment should go through the payments service instead.
func (s *Service) TopUp(ctx context.Context, artistID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("top-up amount must be positive")
	}

	var balance int64
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		a, err := tx.ArtistForUpdate(ctx, artistID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrArtistNotFound
			}
			return err
		}
		balance = a.Credits + amount
		return tx.SetArtistCredits(ctx, artistID, balance)
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("artist_id", artistID).
		WithField("amount", amount).
		WithField("balance", balance).
		Info("credits topped up")
	return balance, nil
}

// Balance returns the artist's current credit balance.
func (s *Service) Balance(ctx context.Context, artistID string) (int64, error) {
	a, err := s.artists.GetArtist(ctx, artistID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrArtistNotFound
		}
		return 0, err
	}
	return a.Credits, nil
}
