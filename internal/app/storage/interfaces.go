// Package storage defines the persistence interfaces for the MuseLink
// backend, implemented by the memory and postgres sub-packages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
)

// Sentinel errors shared by all store implementations. Services translate
// these into their own domain errors.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("record already exists")
	// ErrUnavailable wraps transient failures (lock timeouts, lost
	// connections). It is the only storage error worth retrying.
	ErrUnavailable = errors.New("store unavailable")
)

// ArtistStore persists artist records. Credit mutation is deliberately
// excluded here; balances change only through a Tx.
type ArtistStore interface {
	CreateArtist(ctx context.Context, a artist.Artist) (artist.Artist, error)
	GetArtist(ctx context.Context, id string) (artist.Artist, error)
	GetArtistByEmail(ctx context.Context, email string) (artist.Artist, error)
	ListArtists(ctx context.Context) ([]artist.Artist, error)
}

// ClientStore persists client records.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id string) (client.Client, error)
	GetClientByEmail(ctx context.Context, email string) (client.Client, error)
}

// RequestStore persists performance requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, r request.Request) (request.Request, error)
	GetRequest(ctx context.Context, id string) (request.Request, error)
	ListRequests(ctx context.Context, state string) ([]request.Request, error)
	// ListExpiredRequests returns open requests whose event date is before
	// the given instant.
	ListExpiredRequests(ctx context.Context, before time.Time) ([]request.Request, error)
	// CloseRequest conditionally flips an open request to closed. It is a
	// no-op for requests already closed.
	CloseRequest(ctx context.Context, id string) error
}

// UnlockStore persists unlock records and provides the transaction scope the
// allocation protocol runs in.
type UnlockStore interface {
	// InTx executes fn inside one atomic transaction. Row locks taken via
	// the Tx methods are held until commit or rollback; an error from fn
	// rolls back every effect.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	ListUnlocksByArtist(ctx context.Context, artistID string) ([]unlock.Unlock, error)
	CountUnlocks(ctx context.Context, requestID string) (int, error)
}

// Tx is the set of operations available inside an unlock or top-up
// transaction. Implementations must take an exclusive row lock in the
// ForUpdate methods and hold it until the transaction ends. Callers lock the
// request row before the artist row, at every call site, to keep lock
// acquisition order consistent.
type Tx interface {
	RequestForUpdate(ctx context.Context, id string) (request.Request, error)
	ArtistForUpdate(ctx context.Context, id string) (artist.Artist, error)
	ClientByID(ctx context.Context, id string) (client.Client, error)

	UnlockExists(ctx context.Context, artistID, requestID string) (bool, error)
	CountUnlocks(ctx context.Context, requestID string) (int, error)

	SetArtistCredits(ctx context.Context, id string, credits int64) error
	InsertUnlock(ctx context.Context, rec unlock.Unlock) error
	SetRequestState(ctx context.Context, id, state string) error

	TopUpExists(ctx context.Context, reference string) (bool, error)
	InsertTopUp(ctx context.Context, reference, artistID string, amount int64) error
}
