package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestCreateChat_KindAndMembership(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store, err := Open(context.Background(), "sqlite::memory:", logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	alice, err := store.CreateUser(ctx, "alice", "a@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	bob, err := store.CreateUser(ctx, "bob", "b@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	carol, err := store.CreateUser(ctx, "carol", "c@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	direct, err := store.CreateChat(ctx, alice.ID, nil, []string{bob.ID}, nowMs)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if direct.Kind != ChatKindDirect {
		t.Fatalf("kind = %q, want %q", direct.Kind, ChatKindDirect)
	}

	name := "weekend plans"
	group, err := store.CreateChat(ctx, alice.ID, &name, []string{bob.ID, carol.ID}, nowMs+1)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if group.Kind != ChatKindGroup {
		t.Fatalf("kind = %q, want %q", group.Kind, ChatKindGroup)
	}

	members, err := store.ListChatParticipants(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListChatParticipants() error = %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("participants = %d, want 3", len(members))
	}

	if ok, err := store.IsChatParticipant(ctx, direct.ID, carol.ID); err != nil || ok {
		t.Fatalf("IsChatParticipant(carol, direct) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMessages_SendAndPaginate(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store, err := Open(context.Background(), "sqlite::memory:", logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	nowMs := time.Now().UnixMilli()

	alice, err := store.CreateUser(ctx, "alice", "a@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	bob, err := store.CreateUser(ctx, "bob", "b@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	outsider, err := store.CreateUser(ctx, "outsider", "o@example.com", "hash", nowMs)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	chat, err := store.CreateChat(ctx, alice.ID, nil, []string{bob.ID}, nowMs)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	// A non-participant cannot write.
	_, err = store.CreateMessage(ctx, chat.ID, outsider.ID, "hi", nowMs)
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("CreateMessage(outsider) error = %v, want ErrNotParticipant", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := store.CreateMessage(ctx, chat.ID, alice.ID, fmt.Sprintf("msg-%d", i), nowMs+int64(i)); err != nil {
			t.Fatalf("CreateMessage(#%d) error = %v", i, err)
		}
	}

	// Newest first, limit+1 signals more pages.
	page, hasMore, err := store.ListMessages(ctx, chat.ID, bob.ID, 3, "")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(page) != 3 || !hasMore {
		t.Fatalf("ListMessages() = (%d rows, hasMore=%v), want (3, true)", len(page), hasMore)
	}
	if page[0].Text != "msg-4" {
		t.Fatalf("first message = %q, want %q", page[0].Text, "msg-4")
	}

	rest, hasMore, err := store.ListMessages(ctx, chat.ID, bob.ID, 3, page[len(page)-1].ID)
	if err != nil {
		t.Fatalf("ListMessages(before) error = %v", err)
	}
	if len(rest) != 2 || hasMore {
		t.Fatalf("ListMessages(before) = (%d rows, hasMore=%v), want (2, false)", len(rest), hasMore)
	}

	// The chat carries its last message for listing.
	chats, err := store.ListChatsForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListChatsForUser() error = %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(chats))
	}
	if chats[0].LastMessageText == nil || *chats[0].LastMessageText != "msg-4" {
		t.Fatalf("lastMessageText = %v, want msg-4", chats[0].LastMessageText)
	}
}
