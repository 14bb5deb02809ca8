package store

import (
	"context"
	"testing"
)

func seedChatUser(t *testing.T, st Store, authID string) User {
	t.Helper()
	ctx := context.Background()
	model, err := st.UpsertModel(ctx, Model{Name: "Test Model", Model: "test/model"})
	if err != nil {
		t.Fatalf("seed model: %v", err)
	}
	user, err := st.CreateUser(ctx, authID, model.ID, "")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// Chats created without a client id must not collide with each other.
func TestCreateChatGeneratesMissingClientID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedChatUser(t, st, "auth_a")

	first, err := st.CreateChat(ctx, user.ID, "", "rocks")
	if err != nil {
		t.Fatalf("first chat: %v", err)
	}
	second, err := st.CreateChat(ctx, user.ID, "  ", "minerals")
	if err != nil {
		t.Fatalf("second chat: %v", err)
	}

	if first.ClientID == "" || second.ClientID == "" {
		t.Fatalf("expected generated client ids, got %q and %q", first.ClientID, second.ClientID)
	}
	if first.ClientID == second.ClientID {
		t.Fatalf("client ids collided: %q", first.ClientID)
	}
}

func TestCreateChatClientIDUniquePerUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	user := seedChatUser(t, st, "auth_b")

	if _, err := st.CreateChat(ctx, user.ID, "client-1", ""); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := st.CreateChat(ctx, user.ID, "client-1", ""); err == nil {
		t.Fatal("expected duplicate client id for the same user to fail")
	}
}
