package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/storage"
)

func TestCreateArtistRejectsDuplicateEmail(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateArtist(ctx, artist.Artist{Name: "First", Email: "Dup@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.CreateArtist(ctx, artist.Artist{Name: "Second", Email: "dup@example.com"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestGetArtistByEmailNormalizes(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateArtist(ctx, artist.Artist{Name: "A", Email: "Mixed.Case@Example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := store.GetArtistByEmail(ctx, "MIXED.CASE@example.COM")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("lookup returned wrong artist: %s != %s", found.ID, created.ID)
	}
}

func TestCreateRequestRequiresClient(t *testing.T) {
	store := New()
	_, err := store.CreateRequest(context.Background(), request.Request{ClientID: "missing", Quota: 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown client, got %v", err)
	}
}

func TestListExpiredRequests(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, err := store.CreateClient(ctx, client.Client{Name: "C", Email: "c@example.com"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	past, _ := store.CreateRequest(ctx, request.Request{
		ClientID:  c.ID,
		Quota:     1,
		EventDate: time.Now().UTC().Add(-48 * time.Hour),
	})
	if _, err := store.CreateRequest(ctx, request.Request{
		ClientID:  c.ID,
		Quota:     1,
		EventDate: time.Now().UTC().Add(48 * time.Hour),
	}); err != nil {
		t.Fatalf("create future request: %v", err)
	}

	expired, err := store.ListExpiredRequests(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != past.ID {
		t.Fatalf("expected only the past request, got %+v", expired)
	}
}

func TestInTxStagesUntilCommit(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, _ := store.CreateClient(ctx, client.Client{Name: "C", Email: "c@example.com"})
	a, _ := store.CreateArtist(ctx, artist.Artist{Name: "A", Email: "a@example.com", Credits: 2})
	r, _ := store.CreateRequest(ctx, request.Request{ClientID: c.ID, Quota: 1})

	boom := errors.New("abort")
	err := store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetArtistCredits(ctx, a.ID, 1); err != nil {
			return err
		}
		if err := tx.InsertUnlock(ctx, unlock.Unlock{ArtistID: a.ID, RequestID: r.ID}); err != nil {
			return err
		}
		if err := tx.SetRequestState(ctx, r.ID, request.StateClosed); err != nil {
			return err
		}
		// Staged effects are visible inside the transaction.
		locked, err := tx.ArtistForUpdate(ctx, a.ID)
		if err != nil {
			return err
		}
		if locked.Credits != 1 {
			t.Fatalf("staged credits not visible in tx: %d", locked.Credits)
		}
		count, err := tx.CountUnlocks(ctx, r.ID)
		if err != nil {
			return err
		}
		if count != 1 {
			t.Fatalf("staged unlock not visible in tx: %d", count)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort, got %v", err)
	}

	stored, _ := store.GetArtist(ctx, a.ID)
	if stored.Credits != 2 {
		t.Fatalf("aborted tx leaked credit change: %d", stored.Credits)
	}
	count, _ := store.CountUnlocks(ctx, r.ID)
	if count != 0 {
		t.Fatalf("aborted tx leaked unlock row: %d", count)
	}
	req, _ := store.GetRequest(ctx, r.ID)
	if req.State != request.StateOpen {
		t.Fatalf("aborted tx leaked state change: %s", req.State)
	}
}

func TestInTxCommitApplies(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, _ := store.CreateClient(ctx, client.Client{Name: "C", Email: "c@example.com"})
	a, _ := store.CreateArtist(ctx, artist.Artist{Name: "A", Email: "a@example.com", Credits: 2})
	r, _ := store.CreateRequest(ctx, request.Request{ClientID: c.ID, Quota: 1})

	err := store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetArtistCredits(ctx, a.ID, 1); err != nil {
			return err
		}
		return tx.InsertUnlock(ctx, unlock.Unlock{ArtistID: a.ID, RequestID: r.ID})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	stored, _ := store.GetArtist(ctx, a.ID)
	if stored.Credits != 1 {
		t.Fatalf("committed credits not applied: %d", stored.Credits)
	}
	unlocks, _ := store.ListUnlocksByArtist(ctx, a.ID)
	if len(unlocks) != 1 || unlocks[0].RequestID != r.ID {
		t.Fatalf("committed unlock not applied: %+v", unlocks)
	}
}

func TestInTxDuplicateUnlockConflicts(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, _ := store.CreateClient(ctx, client.Client{Name: "C", Email: "c@example.com"})
	a, _ := store.CreateArtist(ctx, artist.Artist{Name: "A", Email: "a@example.com", Credits: 2})
	r, _ := store.CreateRequest(ctx, request.Request{ClientID: c.ID, Quota: 5})

	insert := func() error {
		return store.InTx(ctx, func(tx storage.Tx) error {
			return tx.InsertUnlock(ctx, unlock.Unlock{ArtistID: a.ID, RequestID: r.ID})
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate unlock, got %v", err)
	}
}

func TestInTxTopUpIdempotencyKey(t *testing.T) {
	store := New()
	ctx := context.Background()

	a, _ := store.CreateArtist(ctx, artist.Artist{Name: "A", Email: "a@example.com"})

	err := store.InTx(ctx, func(tx storage.Tx) error {
		exists, err := tx.TopUpExists(ctx, "pay-1")
		if err != nil {
			return err
		}
		if exists {
			t.Fatal("reference should not exist yet")
		}
		return tx.InsertTopUp(ctx, "pay-1", a.ID, 10)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	err = store.InTx(ctx, func(tx storage.Tx) error {
		exists, err := tx.TopUpExists(ctx, "pay-1")
		if err != nil {
			return err
		}
		if !exists {
			t.Fatal("reference should exist after commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
