package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

func TestCreateAndGetLast(t *testing.T) {
	repo := NewTranscriptRepository()
	ctx := context.Background()

	first := entities.NewSession("room-1", "alice")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	second := entities.NewSession("room-1", "alice")
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetLastByRoom(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("Expected most recent session %s, got %+v", second.ID, got)
	}
}

func TestGetLastByRoomMissing(t *testing.T) {
	repo := NewTranscriptRepository()

	got, err := repo.GetLastByRoom(context.Background(), "room-x", "bob")
	if err != nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}

	if _, err := repo.GetLastByRoom(context.Background(), "", "bob"); err == nil {
		t.Error("Expected error for empty room ID")
	}
}

func TestUpdatePersistsMessages(t *testing.T) {
	repo := NewTranscriptRepository()
	ctx := context.Background()

	session := entities.NewSession("room-1", "alice")
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	session.AddMessage(entities.MessageRoleUser, "hello", 2*time.Second, entities.TranscriptMetadata{})
	if err := repo.Update(ctx, session); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetLastByRoom(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "hello" {
		t.Errorf("Unexpected message content %q", got.Messages[0].Content)
	}
	if got.Messages[0].DurationMs != 2000 {
		t.Errorf("Expected duration 2000ms, got %d", got.Messages[0].DurationMs)
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	repo := NewTranscriptRepository()

	session := entities.NewSession("room-1", "alice")
	session.ID = "does-not-exist"
	if err := repo.Update(context.Background(), session); err == nil {
		t.Error("Expected error updating unknown session")
	}
}
