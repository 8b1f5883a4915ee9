// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/domain/unlock"
	"github.com/muse-link/muselink-backend/internal/app/storage"
)

// Store keeps all records in maps guarded by one mutex. Transactions started
// with InTx hold the mutex for their whole duration, which serialises them
// the same way row locks do in Postgres.
type Store struct {
	mu             sync.RWMutex
	artists        map[string]artist.Artist
	artistsByEmail map[string]string
	clients        map[string]client.Client
	clientsByEmail map[string]string
	requests       map[string]request.Request
	unlocks        map[string]unlock.Unlock // keyed by artistID + "/" + requestID
	topUps         map[string]topUp         // keyed by payment reference
}

type topUp struct {
	ArtistID  string
	Amount    int64
	CreatedAt time.Time
}

var _ storage.ArtistStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.UnlockStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		artists:        make(map[string]artist.Artist),
		artistsByEmail: make(map[string]string),
		clients:        make(map[string]client.Client),
		clientsByEmail: make(map[string]string),
		requests:       make(map[string]request.Request),
		unlocks:        make(map[string]unlock.Unlock),
		topUps:         make(map[string]topUp),
	}
}

func unlockKey(artistID, requestID string) string {
	return artistID + "/" + requestID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ArtistStore implementation --------------------------------------------------

func (s *Store) CreateArtist(_ context.Context, a artist.Artist) (artist.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, exists := s.artists[a.ID]; exists {
		return artist.Artist{}, fmt.Errorf("artist %s: %w", a.ID, storage.ErrConflict)
	}

	email := normalizeEmail(a.Email)
	if _, exists := s.artistsByEmail[email]; exists {
		return artist.Artist{}, fmt.Errorf("artist email %s: %w", email, storage.ErrConflict)
	}

	now := time.Now().UTC()
	a.Email = email
	a.CreatedAt = now
	a.UpdatedAt = now

	s.artists[a.ID] = a
	s.artistsByEmail[email] = a.ID
	return a, nil
}

func (s *Store) GetArtist(_ context.Context, id string) (artist.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artists[id]
	if !ok {
		return artist.Artist{}, fmt.Errorf("artist %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetArtistByEmail(_ context.Context, email string) (artist.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.artistsByEmail[normalizeEmail(email)]
	if !ok {
		return artist.Artist{}, fmt.Errorf("artist email %s: %w", email, storage.ErrNotFound)
	}
	return s.artists[id], nil
}

func (s *Store) ListArtists(_ context.Context) ([]artist.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]artist.Artist, 0, len(s.artists))
	for _, a := range s.artists {
		result = append(result, a)
	}
	return result, nil
}

// ClientStore implementation --------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	} else if _, exists := s.clients[c.ID]; exists {
		return client.Client{}, fmt.Errorf("client %s: %w", c.ID, storage.ErrConflict)
	}

	email := normalizeEmail(c.Email)
	if _, exists := s.clientsByEmail[email]; exists {
		return client.Client{}, fmt.Errorf("client email %s: %w", email, storage.ErrConflict)
	}

	now := time.Now().UTC()
	c.Email = email
	c.CreatedAt = now
	c.UpdatedAt = now

	s.clients[c.ID] = c
	s.clientsByEmail[email] = c.ID
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return client.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetClientByEmail(_ context.Context, email string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientsByEmail[normalizeEmail(email)]
	if !ok {
		return client.Client{}, fmt.Errorf("client email %s: %w", email, storage.ErrNotFound)
	}
	return s.clients[id], nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, r request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if _, exists := s.requests[r.ID]; exists {
		return request.Request{}, fmt.Errorf("request %s: %w", r.ID, storage.ErrConflict)
	}
	if _, ok := s.clients[r.ClientID]; !ok {
		return request.Request{}, fmt.Errorf("client %s: %w", r.ClientID, storage.ErrNotFound)
	}

	now := time.Now().UTC()
	if r.State == "" {
		r.State = request.StateOpen
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	s.requests[r.ID] = r
	return r, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return request.Request{}, fmt.Errorf("request %s: %w", id, storage.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListRequests(_ context.Context, state string) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.Request, 0)
	for _, r := range s.requests {
		if state == "" || r.State == state {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) ListExpiredRequests(_ context.Context, before time.Time) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.Request, 0)
	for _, r := range s.requests {
		if r.State == request.StateOpen && !r.EventDate.IsZero() && r.EventDate.Before(before) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *Store) CloseRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, storage.ErrNotFound)
	}
	if r.State == request.StateClosed {
		return nil
	}
	r.State = request.StateClosed
	r.UpdatedAt = time.Now().UTC()
	s.requests[id] = r
	return nil
}

// UnlockStore implementation --------------------------------------------------

func (s *Store) ListUnlocksByArtist(_ context.Context, artistID string) ([]unlock.Unlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]unlock.Unlock, 0)
	for _, u := range s.unlocks {
		if u.ArtistID == artistID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (s *Store) CountUnlocks(_ context.Context, requestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countUnlocksLocked(requestID), nil
}

func (s *Store) countUnlocksLocked(requestID string) int {
	count := 0
	for _, u := range s.unlocks {
		if u.RequestID == requestID {
			count++
		}
	}
	return count
}

// InTx runs fn while holding the store mutex. Mutations are staged on the
// transaction and applied only when fn returns nil, so a failing transaction
// leaves no effects behind.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commitLocked()
	return nil
}

// memTx stages transaction effects over the store maps.
type memTx struct {
	store *Store

	creditOverrides map[string]int64
	stateOverrides  map[string]string
	newUnlocks      []unlock.Unlock
	newTopUps       map[string]topUp
}

var _ storage.Tx = (*memTx)(nil)

func (t *memTx) RequestForUpdate(_ context.Context, id string) (request.Request, error) {
	r, ok := t.store.requests[id]
	if !ok {
		return request.Request{}, fmt.Errorf("request %s: %w", id, storage.ErrNotFound)
	}
	if state, ok := t.stateOverrides[id]; ok {
		r.State = state
	}
	return r, nil
}

func (t *memTx) ArtistForUpdate(_ context.Context, id string) (artist.Artist, error) {
	a, ok := t.store.artists[id]
	if !ok {
		return artist.Artist{}, fmt.Errorf("artist %s: %w", id, storage.ErrNotFound)
	}
	if credits, ok := t.creditOverrides[id]; ok {
		a.Credits = credits
	}
	return a, nil
}

func (t *memTx) ClientByID(_ context.Context, id string) (client.Client, error) {
	c, ok := t.store.clients[id]
	if !ok {
		return client.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (t *memTx) UnlockExists(_ context.Context, artistID, requestID string) (bool, error) {
	if _, ok := t.store.unlocks[unlockKey(artistID, requestID)]; ok {
		return true, nil
	}
	for _, u := range t.newUnlocks {
		if u.ArtistID == artistID && u.RequestID == requestID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountUnlocks(_ context.Context, requestID string) (int, error) {
	count := t.store.countUnlocksLocked(requestID)
	for _, u := range t.newUnlocks {
		if u.RequestID == requestID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) SetArtistCredits(_ context.Context, id string, credits int64) error {
	if _, ok := t.store.artists[id]; !ok {
		return fmt.Errorf("artist %s: %w", id, storage.ErrNotFound)
	}
	if credits < 0 {
		return fmt.Errorf("artist %s credits below zero: %w", id, storage.ErrConflict)
	}
	if t.creditOverrides == nil {
		t.creditOverrides = make(map[string]int64)
	}
	t.creditOverrides[id] = credits
	return nil
}

func (t *memTx) InsertUnlock(ctx context.Context, rec unlock.Unlock) error {
	exists, err := t.UnlockExists(ctx, rec.ArtistID, rec.RequestID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("unlock %s/%s: %w", rec.ArtistID, rec.RequestID, storage.ErrConflict)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	t.newUnlocks = append(t.newUnlocks, rec)
	return nil
}

func (t *memTx) SetRequestState(_ context.Context, id, state string) error {
	if _, ok := t.store.requests[id]; !ok {
		return fmt.Errorf("request %s: %w", id, storage.ErrNotFound)
	}
	if t.stateOverrides == nil {
		t.stateOverrides = make(map[string]string)
	}
	t.stateOverrides[id] = state
	return nil
}

func (t *memTx) TopUpExists(_ context.Context, reference string) (bool, error) {
	if _, ok := t.store.topUps[reference]; ok {
		return true, nil
	}
	_, staged := t.newTopUps[reference]
	return staged, nil
}

func (t *memTx) InsertTopUp(ctx context.Context, reference, artistID string, amount int64) error {
	exists, err := t.TopUpExists(ctx, reference)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("top-up %s: %w", reference, storage.ErrConflict)
	}
	if t.newTopUps == nil {
		t.newTopUps = make(map[string]topUp)
	}
	t.newTopUps[reference] = topUp{ArtistID: artistID, Amount: amount, CreatedAt: time.Now().UTC()}
	return nil
}

func (t *memTx) commitLocked() {
	now := time.Now().UTC()
	for id, credits := range t.creditOverrides {
		a := t.store.artists[id]
		a.Credits = credits
		a.UpdatedAt = now
		t.store.artists[id] = a
	}
	for id, state := range t.stateOverrides {
		r := t.store.requests[id]
		r.State = state
		r.UpdatedAt = now
		t.store.requests[id] = r
	}
	for _, u := range t.newUnlocks {
		t.store.unlocks[unlockKey(u.ArtistID, u.RequestID)] = u
	}
	for ref, tu := range t.newTopUps {
		t.store.topUps[ref] = tu
	}
}
