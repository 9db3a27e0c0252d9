package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ivanValieri/din-cash/internal/domain"
	"github.com/ivanValieri/din-cash/internal/store"
)

func TestIdentityEventConsumer_HandleUserCreated(t *testing.T) {
	repo := store.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, nil, logger, Options{AdminContacts: []string{"+5511999990000"}})
	consumer := NewIdentityEventConsumer(svc)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "malformed json is dropped", body: `{"subject":`, want: true},
		{name: "missing subject is dropped", body: `{"name":"x"}`, want: true},
		{name: "phone signup", body: `{"subject":"sub-1","name":"Maria","phone":"+5511999990000"}`, want: true},
		{name: "redelivery is idempotent", body: `{"subject":"sub-1","name":"Maria","phone":"+5511999990000"}`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consumer.HandleUserCreated([]byte(tt.body)); got != tt.want {
				t.Fatalf("expected ack=%v, got %v", tt.want, got)
			}
		})
	}

	users, _ := repo.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 provisioned user, got %d", len(users))
	}
	if users[0].Contact != "+5511999990000" || !users[0].IsAdmin || users[0].Name != "Maria" {
		t.Fatalf("unexpected provisioned user: %+v", users[0])
	}
}

func TestIdentityFromEvent_PrefersEmail(t *testing.T) {
	identity := IdentityFromEvent(domain.UserCreatedEvent{Subject: " s ", Email: "a@b.c", Phone: "+55"})
	if identity.Contact != "a@b.c" || identity.Subject != "s" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	identity = IdentityFromEvent(domain.UserCreatedEvent{Subject: "s", Phone: "+55"})
	if identity.Contact != "+55" {
		t.Fatalf("expected phone fallback, got %+v", identity)
	}
}
