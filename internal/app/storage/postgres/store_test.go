package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func artistRows(id string, credits int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "credits", "created_at", "updated_at"}).
		AddRow(id, "Artist", "a@example.com", "hash", "artist", credits, now, now)
}

func requestRows(id, clientID string, quota int, state string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "client_id", "title", "description", "event_date", "quota", "state", "created_at", "updated_at"}).
		AddRow(id, clientID, "title", "", nil, quota, state, now, now)
}

func clientRows(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "phone", "created_at", "updated_at"}).
		AddRow(id, "Owner", "owner@example.com", "hash", "+1-555-0100", now, now)
}

// The full unlock statement sequence: lock request, check duplicates, count,
// lock artist, debit, insert, close, read contact, commit.
func TestInTxUnlockSequence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FROM requests\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs("req-1").
		WillReturnRows(requestRows("req-1", "cli-1", 2, request.StateOpen))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM unlocks`).
		WithArgs("art-1", "req-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM unlocks`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)SELECT .* FROM artists\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs("art-1").
		WillReturnRows(artistRows("art-1", 3))
	mock.ExpectExec(`UPDATE artists\s+SET credits = \$2`).
		WithArgs("art-1", int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO unlocks`).
		WithArgs("art-1", "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE requests\s+SET state = \$2`).
		WithArgs("req-1", request.StateClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)SELECT .* FROM clients\s+WHERE id = \$1`).
		WithArgs("cli-1").
		WillReturnRows(clientRows("cli-1"))
	mock.ExpectCommit()

	ctx := context.Background()
	err := store.InTx(ctx, func(tx storage.Tx) error {
		r, err := tx.RequestForUpdate(ctx, "req-1")
		if err != nil {
			return err
		}
		if exists, err := tx.UnlockExists(ctx, "art-1", r.ID); err != nil || exists {
			t.Fatalf("unexpected duplicate: exists=%t err=%v", exists, err)
		}
		count, err := tx.CountUnlocks(ctx, r.ID)
		if err != nil {
			return err
		}
		a, err := tx.ArtistForUpdate(ctx, "art-1")
		if err != nil {
			return err
		}
		if err := tx.SetArtistCredits(ctx, a.ID, a.Credits-1); err != nil {
			return err
		}
		if err := tx.InsertUnlock(ctx, unlock.Unlock{ArtistID: a.ID, RequestID: r.ID}); err != nil {
			return err
		}
		if count+1 >= r.Quota {
			if err := tx.SetRequestState(ctx, r.ID, request.StateClosed); err != nil {
				return err
			}
		}
		_, err = tx.ClientByID(ctx, r.ClientID)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInTxErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FROM requests`).
		WithArgs("req-1").
		WillReturnRows(requestRows("req-1", "cli-1", 1, request.StateOpen))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		if _, err := tx.RequestForUpdate(context.Background(), "req-1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWrapErrMapsSentinels(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, storage.ErrNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, storage.ErrConflict},
		{"serialization failure", &pq.Error{Code: "40001"}, storage.ErrUnavailable},
		{"deadlock", &pq.Error{Code: "40P01"}, storage.ErrUnavailable},
		{"lock not available", &pq.Error{Code: "55P03"}, storage.ErrUnavailable},
	}
	for _, tc := range cases {
		got := wrapErr("op", tc.in)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
	if wrapErr("op", nil) != nil {
		t.Fatal("nil error must pass through")
	}
}

func TestInsertUnlockDuplicateMapsToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO unlocks`).
		WithArgs("art-1", "req-1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertUnlock(context.Background(), unlock.Unlock{ArtistID: "art-1", RequestID: "req-1"})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
