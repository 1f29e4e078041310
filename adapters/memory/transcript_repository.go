// Package memory provides in-memory repository implementations for
// development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// TranscriptRepository keeps transcript sessions in process memory.
type TranscriptRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	// order preserves insertion order per room/participant key
	order map[string][]string
}

var _ repositories.TranscriptRepository = (*TranscriptRepository)(nil)

func NewTranscriptRepository() *TranscriptRepository {
	return &TranscriptRepository{
		sessions: make(map[string]*entities.Session),
		order:    make(map[string][]string),
	}
}

func key(roomID, participant string) string {
	return roomID + "/" + participant
}

func (r *TranscriptRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session.ID = uuid.NewString()
	clone := *session
	r.sessions[session.ID] = &clone
	k := key(session.RoomID, session.Participant)
	r.order[k] = append(r.order[k], session.ID)
	return nil
}

func (r *TranscriptRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return fmt.Errorf("session with ID %s not found", session.ID)
	}
	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *TranscriptRepository) GetLastByRoom(ctx context.Context, roomID, participant string) (*entities.Session, error) {
	if roomID == "" {
		return nil, errors.New("room ID cannot be empty")
	}
	if participant == "" {
		return nil, errors.New("participant cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[key(roomID, participant)]
	if len(ids) == 0 {
		return nil, nil
	}
	clone := *r.sessions[ids[len(ids)-1]]
	return &clone, nil
}
