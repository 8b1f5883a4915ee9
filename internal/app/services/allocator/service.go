// Package allocator issues quota-bounded, credit-gated unlocks of client
// contact details. Every Unlock runs as one storage transaction: the request
// row lock serialises competitors for the same request, the ledger's artist
// row lock serialises spends from the same balance, and locks are always
// acquired request-first so overlapping unlocks cannot deadlock.
package allocator

import (
	"context"
	"errors"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/metrics"
	"github.com/muse-link/muselink-backend/internal/app/services/ledger"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrRequestNotFound is returned when the named request does not exist.
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestClosed is returned when the request no longer accepts
	// unlocks.
	ErrRequestClosed = errors.New("request is closed")
	// ErrAlreadyUnlocked is returned when this artist already holds an
	// unlock for the request. The artist is not charged again.
	ErrAlreadyUnlocked = errors.New("request already unlocked by this artist")
	// ErrQuotaExhausted is returned when the request has reached its unlock
	// quota but was still observed open.
	ErrQuotaExhausted = errors.New("request unlock quota exhausted")
)

// Service implements the unlock allocation protocol.
type Service struct {
	store        storage.UnlockStore
	ledger       *ledger.Service
	closeOnQuota bool
	log          *logger.Logger
}

// Option customises allocator behaviour.
type Option func(*Service)

// WithCloseOnQuota controls whether a request is flipped to closed once its
// quota is reached. Enabled by default; disabling leaves requests open until
// they are closed manually or expire.
func WithCloseOnQuota(enabled bool) Option {
	return func(s *Service) {
		s.closeOnQuota = enabled
	}
}

// New constructs an allocator service.
func New(store storage.UnlockStore, ledgerSvc *ledger.Service, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("allocator")
	}
	s := &Service{
		store:        store,
		ledger:       ledgerSvc,
		closeOnQuota: true,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Unlock debits one credit from the artist and grants access to the request
// owner's contact details. The checks and both mutations happen inside a
// single transaction; any failure rolls everything back, so there is never a
// debit without an unlock row or an unlock row without a debit.
func (s *Service) Unlock(ctx context.Context, artistID, requestID string) (unlock.Receipt, error) {
	start := time.Now()
	var receipt unlock.Receipt

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		// Request row first; its lock serialises all competitors for the
		// same request, including the quota count below.
		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrRequestNotFound
			}
			return err
		}

		if !req.Open() {
			return ErrRequestClosed
		}

		exists, err := tx.UnlockExists(ctx, artistID, requestID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyUnlocked
		}

		// Re-count under the lock. The state check above should already
		// rule this out, but a request left open by configuration (or a
		// stale state write) must still never exceed its quota.
		count, err := tx.CountUnlocks(ctx, requestID)
		if err != nil {
			return err
		}
		if count >= req.Quota {
			return ErrQuotaExhausted
		}

		// Artist row second; debit errors propagate verbatim and abort
		// the transaction before any unlock row exists.
		balance, err := s.ledger.DebitOne(ctx, tx, artistID)
		if err != nil {
			return err
		}

		if err := tx.InsertUnlock(ctx, unlock.Unlock{
			ArtistID:  artistID,
			RequestID: requestID,
		}); err != nil {
			return err
		}

		if count+1 >= req.Quota && s.closeOnQuota {
			if err := tx.SetRequestState(ctx, requestID, request.StateClosed); err != nil {
				return err
			}
		}

		owner, err := tx.ClientByID(ctx, req.ClientID)
		if err != nil {
			return err
		}

		receipt = unlock.Receipt{
			ArtistID:  artistID,
			RequestID: requestID,
			Balance:   balance,
			Contact:   client.ContactOf(owner),
		}
		return nil
	})

	metrics.RecordUnlockAttempt(outcomeOf(err), time.Since(start))

	if err != nil {
		return unlock.Receipt{}, err
	}

	s.log.WithField("artist_id", artistID).
		WithField("request_id", requestID).
		WithField("balance", receipt.Balance).
		Info("request unlocked")
	return receipt, nil
}

// ListByArtist returns the unlocks an artist has purchased.
func (s *Service) ListByArtist(ctx context.Context, artistID string) ([]unlock.Unlock, error) {
	return s.store.ListUnlocksByArtist(ctx, artistID)
}

// CountForRequest returns how many unlocks a request has accumulated.
func (s *Service) CountForRequest(ctx context.Context, requestID string) (int, error) {
	return s.store.CountUnlocks(ctx, requestID)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, ErrRequestClosed):
		return "request_closed"
	case errors.Is(err, ErrAlreadyUnlocked):
		return "already_unlocked"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ledger.ErrArtistNotFound):
		return "artist_not_found"
	case errors.Is(err, storage.ErrUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
