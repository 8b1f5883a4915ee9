package requests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/storage/memory"
)

func seedClient(t *testing.T, store *memory.Store) client.Client {
	t.Helper()
	c, err := store.CreateClient(context.Background(), client.Client{
		Name:  "Venue Owner",
		Email: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c
}

func TestCreateRequest(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	owner := seedClient(t, store)

	created, err := svc.Create(context.Background(), CreateInput{
		ClientID:  owner.ID,
		Title:     "jazz trio for gallery opening",
		EventDate: time.Now().UTC().Add(30 * 24 * time.Hour),
		Quota:     4,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.State != request.StateOpen {
		t.Fatalf("new request must be open, got %s", created.State)
	}
	if created.Quota != 4 {
		t.Fatalf("quota: got %d want 4", created.Quota)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	owner := seedClient(t, store)

	cases := []CreateInput{
		{ClientID: "", Title: "t", Quota: 1},
		{ClientID: owner.ID, Title: "", Quota: 1},
		{ClientID: owner.ID, Title: "t", Quota: 0},
		{ClientID: owner.ID, Title: "t", Quota: -2},
		{ClientID: owner.ID, Title: "t", Quota: 1, EventDate: time.Now().UTC().Add(-time.Hour)},
	}
	for _, in := range cases {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}

	_, err := svc.Create(context.Background(), CreateInput{ClientID: "missing", Title: "t", Quota: 1})
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestListFiltersByState(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	owner := seedClient(t, store)

	open, err := svc.Create(context.Background(), CreateInput{ClientID: owner.ID, Title: "open one", Quota: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	closed, err := svc.Create(context.Background(), CreateInput{ClientID: owner.ID, Title: "closed one", Quota: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Close(context.Background(), closed.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	openList, err := svc.List(context.Background(), request.StateOpen)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(openList) != 1 || openList[0].ID != open.ID {
		t.Fatalf("open list wrong: %+v", openList)
	}

	all, err := svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(all))
	}

	if _, err := svc.List(context.Background(), "pending"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown state, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	owner := seedClient(t, store)

	r, err := svc.Create(context.Background(), CreateInput{ClientID: owner.ID, Title: "t", Quota: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Close(context.Background(), r.ID); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.Close(context.Background(), r.ID); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	if err := svc.Close(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweeperClosesExpiredRequests(t *testing.T) {
	store := memory.New()
	owner := seedClient(t, store)

	// Created directly on the store so the event date can sit in the past.
	expired, err := store.CreateRequest(context.Background(), request.Request{
		ClientID:  owner.ID,
		Title:     "yesterday's party",
		Quota:     1,
		EventDate: time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create expired: %v", err)
	}
	upcoming, err := store.CreateRequest(context.Background(), request.Request{
		ClientID:  owner.ID,
		Title:     "next month",
		Quota:     1,
		EventDate: time.Now().UTC().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create upcoming: %v", err)
	}

	sweeper := NewSweeper(store, time.Minute, nil)
	sweeper.tick(context.Background())

	got, _ := store.GetRequest(context.Background(), expired.ID)
	if got.State != request.StateClosed {
		t.Fatalf("expired request should be closed, got %s", got.State)
	}
	got, _ = store.GetRequest(context.Background(), upcoming.ID)
	if got.State != request.StateOpen {
		t.Fatalf("upcoming request should stay open, got %s", got.State)
	}
}

func TestSweeperStartStop(t *testing.T) {
	store := memory.New()
	sweeper := NewSweeper(store, 10*time.Millisecond, nil)

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second start is a no-op.
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}
