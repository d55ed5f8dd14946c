package stream

import (
	"context"
	"testing"

	"github.com/lumehealth/lume/backend/internal/model/conversation"
	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	dialogueservice "github.com/lumehealth/lume/backend/internal/service/dialogue"
)

func TestGetSessionFocusReturnsBoundFocus(t *testing.T) {
	dialogueSvc := dialogueservice.NewService()
	store := conversation.NewMemoryStore(conversation.Seed())
	handler := New(nil, dialogueSvc, store)

	ctx := context.Background()
	session, err := dialogueSvc.CreateSession(ctx, "user1", "orientation")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	_, gotFocus, err := handler.getSessionFocus(ctx, session.ID)
	if err != nil {
		t.Fatalf("getSessionFocus err: %v", err)
	}

	if gotFocus.ID != "orientation" {
		t.Fatalf("expected focus orientation, got %s", gotFocus.ID)
	}
}

func TestGetSessionFocusMissingFocus(t *testing.T) {
	dialogueSvc := dialogueservice.NewService()
	store := conversation.NewMemoryStore(nil)
	handler := New(nil, dialogueSvc, store)

	ctx := context.Background()
	session, err := dialogueSvc.CreateSession(ctx, "user1", "unknown")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if _, _, err := handler.getSessionFocus(ctx, session.ID); err == nil {
		t.Fatal("expected error when focus not found")
	}
}

func TestHasMatchingUserMessage(t *testing.T) {
	messages := []model.Message{
		{SessionID: "s1", Sender: "user", Content: "hello"},
	}

	if !hasMatchingUserMessage(messages, "s1", "hello") {
		t.Fatal("expected match for identical trailing user message")
	}
	if hasMatchingUserMessage(messages, "s1", "different") {
		t.Fatal("no match expected for different content")
	}
	if hasMatchingUserMessage(nil, "s1", "hello") {
		t.Fatal("no match expected for empty transcript")
	}
}
