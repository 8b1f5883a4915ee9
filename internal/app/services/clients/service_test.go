package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/muse-link/muselink-backend/internal/app/storage/memory"
)

func TestRegisterAndVerify(t *testing.T) {
	svc := New(memory.New(), nil)

	created, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Venue Owner",
		Email:    "owner@example.com",
		Phone:    "+1-555-0100",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.PasswordHash == "correct horse" {
		t.Fatal("password must be stored hashed")
	}

	c, err := svc.VerifyCredentials(context.Background(), "owner@example.com", "correct horse")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.ID != created.ID {
		t.Fatalf("verified wrong account: %s != %s", c.ID, created.ID)
	}

	if _, err := svc.VerifyCredentials(context.Background(), "owner@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterRejectsDuplicateAndBadInput(t *testing.T) {
	svc := New(memory.New(), nil)
	in := RegisterInput{Name: "Owner", Email: "owner@example.com", Password: "longenough"}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.Register(context.Background(), RegisterInput{Name: "X", Email: "bad", Password: "longenough"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
