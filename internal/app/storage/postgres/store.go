// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/storage"
)

// Store implements the storage interfaces using the provided database handle.
type Store struct {
	db *sql.DB
}

var _ storage.ArtistStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.UnlockStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// wrapErr translates driver errors into the storage sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		case "40001", "40P01", "55P03", "57014": // serialization, deadlock, lock timeout, cancel
			return fmt.Errorf("%s: %w", op, storage.ErrUnavailable)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, storage.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- ArtistStore ------------------------------------------------------------

func (s *Store) CreateArtist(ctx context.Context, a artist.Artist) (artist.Artist, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = artist.RoleArtist
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (id, name, email, password_hash, role, credits, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)
	`, a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Credits, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return artist.Artist{}, wrapErr("create artist", err)
	}
	return a, nil
}

func (s *Store) GetArtist(ctx context.Context, id string) (artist.Artist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, credits, created_at, updated_at
		FROM artists
		WHERE id = $1
	`, id)
	return scanArtist(row)
}

func (s *Store) GetArtistByEmail(ctx context.Context, email string) (artist.Artist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, credits, created_at, updated_at
		FROM artists
		WHERE email = lower($1)
	`, email)
	return scanArtist(row)
}

func (s *Store) ListArtists(ctx context.Context) ([]artist.Artist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, credits, created_at, updated_at
		FROM artists
		ORDER BY created_at
	`)
	if err != nil {
		return nil, wrapErr("list artists", err)
	}
	defer rows.Close()

	var result []artist.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, wrapErr("list artists", rows.Err())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtist(row rowScanner) (artist.Artist, error) {
	var a artist.Artist
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Credits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return artist.Artist{}, wrapErr("scan artist", err)
	}
	return a, nil
}

// --- ClientStore ------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, email, password_hash, phone, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7)
	`, c.ID, c.Name, c.Email, c.PasswordHash, c.Phone, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return client.Client{}, wrapErr("create client", err)
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, phone, created_at, updated_at
		FROM clients
		WHERE email = lower($1)
	`, email)
	return scanClient(row)
}

func scanClient(row rowScanner) (client.Client, error) {
	var c client.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return client.Client{}, wrapErr("scan client", err)
	}
	return c, nil
}

// --- RequestStore -----------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, r request.Request) (request.Request, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.State == "" {
		r.State = request.StateOpen
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, client_id, title, description, event_date, quota, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.ClientID, r.Title, r.Description, toNullTime(r.EventDate), r.Quota, r.State, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return request.Request{}, wrapErr("create request", err)
	}
	return r, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, title, description, event_date, quota, state, created_at, updated_at
		FROM requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (s *Store) ListRequests(ctx context.Context, state string) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, title, description, event_date, quota, state, created_at, updated_at
		FROM requests
		WHERE $1 = '' OR state = $1
		ORDER BY created_at DESC
	`, state)
	if err != nil {
		return nil, wrapErr("list requests", err)
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, wrapErr("list requests", rows.Err())
}

func (s *Store) ListExpiredRequests(ctx context.Context, before time.Time) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, title, description, event_date, quota, state, created_at, updated_at
		FROM requests
		WHERE state = $1 AND event_date IS NOT NULL AND event_date < $2
		ORDER BY event_date
	`, request.StateOpen, before.UTC())
	if err != nil {
		return nil, wrapErr("list expired requests", err)
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, wrapErr("list expired requests", rows.Err())
}

func (s *Store) CloseRequest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET state = $2, updated_at = $3
		WHERE id = $1 AND state = $4
	`, id, request.StateClosed, time.Now().UTC(), request.StateOpen)
	if err != nil {
		return wrapErr("close request", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Either missing or already closed; distinguish for the caller.
		if _, err := s.GetRequest(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanRequest(row rowScanner) (request.Request, error) {
	var (
		r         request.Request
		eventDate sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.ClientID, &r.Title, &r.Description, &eventDate, &r.Quota, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return request.Request{}, wrapErr("scan request", err)
	}
	if eventDate.Valid {
		r.EventDate = eventDate.Time.UTC()
	}
	return r, nil
}

// --- UnlockStore ------------------------------------------------------------

func (s *Store) ListUnlocksByArtist(ctx context.Context, artistID string) ([]unlock.Unlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artist_id, request_id, created_at
		FROM unlocks
		WHERE artist_id = $1
		ORDER BY created_at DESC
	`, artistID)
	if err != nil {
		return nil, wrapErr("list unlocks", err)
	}
	defer rows.Close()

	var result []unlock.Unlock
	for rows.Next() {
		var u unlock.Unlock
		if err := rows.Scan(&u.ArtistID, &u.RequestID, &u.CreatedAt); err != nil {
			return nil, wrapErr("scan unlock", err)
		}
		result = append(result, u)
	}
	return result, wrapErr("list unlocks", rows.Err())
}

func (s *Store) CountUnlocks(ctx context.Context, requestID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM unlocks WHERE request_id = $1
	`, requestID).Scan(&count)
	if err != nil {
		return 0, wrapErr("count unlocks", err)
	}
	return count, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
