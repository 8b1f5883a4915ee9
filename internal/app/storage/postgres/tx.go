package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/storage"
)

// InTx runs fn inside a single database transaction. Row locks taken by the
// ForUpdate helpers are held until commit, so every check-then-mutate
// sequence inside fn is serialised against concurrent transactions touching
// the same rows. Any error from fn rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return wrapErr("begin tx", err)
	}
	defer dbTx.Rollback()

	if err := fn(&sqlTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return wrapErr("commit tx", err)
	}
	return nil
}

// sqlTx adapts a *sql.Tx to the storage.Tx operations.
type sqlTx struct {
	tx *sql.Tx
}

var _ storage.Tx = (*sqlTx)(nil)

func (t *sqlTx) RequestForUpdate(ctx context.Context, id string) (request.Request, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, client_id, title, description, event_date, quota, state, created_at, updated_at
		FROM requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanRequest(row)
}

func (t *sqlTx) ArtistForUpdate(ctx context.Context, id string) (artist.Artist, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, credits, created_at, updated_at
		FROM artists
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanArtist(row)
}

func (t *sqlTx) ClientByID(ctx context.Context, id string) (client.Client, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (t *sqlTx) UnlockExists(ctx context.Context, artistID, requestID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM unlocks WHERE artist_id = $1 AND request_id = $2)
	`, artistID, requestID).Scan(&exists)
	if err != nil {
		return false, wrapErr("unlock exists", err)
	}
	return exists, nil
}

func (t *sqlTx) CountUnlocks(ctx context.Context, requestID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM unlocks WHERE request_id = $1
	`, requestID).Scan(&count)
	if err != nil {
		return 0, wrapErr("count unlocks", err)
	}
	return count, nil
}

func (t *sqlTx) SetArtistCredits(ctx context.Context, id string, credits int64) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE artists
		SET credits = $2, updated_at = $3
		WHERE id = $1
	`, id, credits, time.Now().UTC())
	if err != nil {
		return wrapErr("set artist credits", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return wrapErr("set artist credits", sql.ErrNoRows)
	}
	return nil
}

func (t *sqlTx) InsertUnlock(ctx context.Context, rec unlock.Unlock) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO unlocks (artist_id, request_id, created_at)
		VALUES ($1, $2, $3)
	`, rec.ArtistID, rec.RequestID, rec.CreatedAt)
	return wrapErr("insert unlock", err)
}

func (t *sqlTx) SetRequestState(ctx context.Context, id, state string) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE requests
		SET state = $2, updated_at = $3
		WHERE id = $1
	`, id, state, time.Now().UTC())
	if err != nil {
		return wrapErr("set request state", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return wrapErr("set request state", sql.ErrNoRows)
	}
	return nil
}

func (t *sqlTx) TopUpExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM credit_topups WHERE reference = $1)
	`, reference).Scan(&exists)
	if err != nil {
		return false, wrapErr("top-up exists", err)
	}
	return exists, nil
}

func (t *sqlTx) InsertTopUp(ctx context.Context, reference, artistID string, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO credit_topups (reference, artist_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`, reference, artistID, amount, time.Now().UTC())
	return wrapErr("insert top-up", err)
}
