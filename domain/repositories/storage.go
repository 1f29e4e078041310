package repositories

import (
	"context"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

// TranscriptRepository defines data access methods for transcript sessions
type TranscriptRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	Update(ctx context.Context, session *entities.Session) error
	// GetLastByRoom returns the most recent session for a participant in a
	// room, or nil when none exists.
	GetLastByRoom(ctx context.Context, roomID, participant string) (*entities.Session, error)
}
