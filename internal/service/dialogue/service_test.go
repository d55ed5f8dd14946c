package dialogue_test

import (
	"context"
	"errors"
	"testing"

	model "github.com/lumehealth/lume/backend/internal/model/dialogue"
	dialogue "github.com/lumehealth/lume/backend/internal/service/dialogue"
)

func TestServiceGetSession(t *testing.T) {
	svc := dialogue.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "user1", "memory")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.FocusID != "memory" {
		t.Fatalf("unexpected focus ID: got %s", got.FocusID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := dialogue.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestCreateSessionRequiresFocus(t *testing.T) {
	svc := dialogue.NewService()

	if _, err := svc.CreateSession(context.Background(), "user1", ""); !errors.Is(err, dialogue.ErrFocusRequired) {
		t.Fatalf("expected ErrFocusRequired, got %v", err)
	}
}

func TestSaveMessageRejectsUnknownSession(t *testing.T) {
	svc := dialogue.NewService()

	err := svc.SaveMessage(context.Background(), model.Message{SessionID: "missing", Sender: "user", Content: "hi"})
	if !errors.Is(err, dialogue.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHistoryPairsExchanges(t *testing.T) {
	svc := dialogue.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "user1", "memory")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	turns := []model.Message{
		{SessionID: session.ID, Sender: "user", Content: "Good morning"},
		{SessionID: session.ID, Sender: "assistant", Content: "Good morning! How did you sleep?"},
		{SessionID: session.ID, Sender: "user", Content: "Quite well, thank you"},
	}
	for _, msg := range turns {
		if err := svc.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	history, err := svc.History(ctx, session.ID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}

	if len(history) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(history))
	}
	if history[0].User != "Good morning" || history[0].Agent == "" {
		t.Fatalf("first exchange not paired: %+v", history[0])
	}
	if history[1].User != "Quite well, thank you" || history[1].Agent != "" {
		t.Fatalf("trailing user message should be unanswered: %+v", history[1])
	}
}
