// Package requests manages performance requests: creation, listing and the
// lifecycle transition to closed.
package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

var (
	// ErrNotFound is returned when the request does not exist.
	ErrNotFound = errors.New("request not found")
	// ErrClientNotFound is returned when the posting client does not exist.
	ErrClientNotFound = errors.New("client not found")
	// ErrInvalidInput is returned for input that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// CreateInput carries the fields required to post a performance request.
type CreateInput struct {
	ClientID    string
	Title       string
	Description string
	EventDate   time.Time
	Quota       int
}

// Service implements request management.
type Service struct {
	store storage.RequestStore
	log   *logger.Logger
}

// New constructs a requests service.
func New(store storage.RequestStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("requests")
	}
	return &Service{store: store, log: log}
}

// Create posts a new open request. Quota is fixed at creation and must be
// positive; the event date, when given, must be in the future.
func (s *Service) Create(ctx context.Context, in CreateInput) (request.Request, error) {
	if err := validateCreate(in); err != nil {
		return request.Request{}, err
	}

	created, err := s.store.CreateRequest(ctx, request.Request{
		ClientID:    in.ClientID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		EventDate:   in.EventDate.UTC(),
		Quota:       in.Quota,
		State:       request.StateOpen,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return request.Request{}, ErrClientNotFound
		}
		return request.Request{}, err
	}

	s.log.WithField("request_id", created.ID).
		WithField("client_id", created.ClientID).
		WithField("quota", created.Quota).
		Info("request posted")
	return created, nil
}

// Get returns the request by ID.
func (s *Service) Get(ctx context.Context, id string) (request.Request, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return request.Request{}, ErrNotFound
		}
		return request.Request{}, err
	}
	return r, nil
}

// List returns requests, optionally filtered by state ("open" or "closed").
func (s *Service) List(ctx context.Context, state string) ([]request.Request, error) {
	switch state {
	case "", request.StateOpen, request.StateClosed:
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, state)
	}
	return s.store.ListRequests(ctx, state)
}

// Close flips the request to closed. Closing an already closed request is a
// no-op.
func (s *Service) Close(ctx context.Context, id string) error {
	if err := s.store.CloseRequest(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func validateCreate(in CreateInput) error {
	if strings.TrimSpace(in.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Quota <= 0 {
		return fmt.Errorf("%w: quota must be positive", ErrInvalidInput)
	}
	if !in.EventDate.IsZero() && in.EventDate.Before(time.Now().UTC()) {
		return fmt.Errorf("%w: event date must be in the future", ErrInvalidInput)
	}
	return nil
}
