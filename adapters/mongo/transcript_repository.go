package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

type TranscriptRepository struct {
	collection *mongo.Collection
}

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database) repositories.TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection("transcripts"),
	}
}

// Create implements repositories.TranscriptRepository
func (r *TranscriptRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = now
	}

	doc := bson.M{
		"room_id":         session.RoomID,
		"participant":     session.Participant,
		"created_at":      session.CreatedAt,
		"last_active_at":  session.LastActiveAt,
		"last_message_at": session.LastMessageAt,
		"expires_at":      session.ExpiresAt,
		"status":          session.Status,
		"messages":        session.Messages,
		"metadata":        session.Metadata,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create transcript session: %w", err)
	}

	// Set the generated ID back to the session
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid.Hex()
	}

	return nil
}

// GetLastByRoom implements repositories.TranscriptRepository
func (r *TranscriptRepository) GetLastByRoom(ctx context.Context, roomID, participant string) (*entities.Session, error) {
	if roomID == "" {
		return nil, errors.New("room ID cannot be empty")
	}
	if participant == "" {
		return nil, errors.New("participant cannot be empty")
	}

	filter := bson.M{"room_id": roomID, "participant": participant}
	opts := options.FindOne().SetSort(bson.M{"last_active_at": -1})

	var doc struct {
		ID               primitive.ObjectID `bson:"_id"`
		entities.Session `bson:",inline"`
	}
	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No session found, return nil without error
		}
		return nil, fmt.Errorf("failed to get last session for room %s: %w", roomID, err)
	}

	session := doc.Session
	session.ID = doc.ID.Hex()
	return &session, nil
}

// Update implements repositories.TranscriptRepository
func (r *TranscriptRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	objectID, err := primitive.ObjectIDFromHex(session.ID)
	if err != nil {
		return fmt.Errorf("invalid session ID format: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"last_active_at":  session.LastActiveAt,
			"last_message_at": session.LastMessageAt,
			"expires_at":      session.ExpiresAt,
			"status":          session.Status,
			"messages":        session.Messages,
			"metadata":        session.Metadata,
		},
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		update,
	)
	if err != nil {
		return fmt.Errorf("failed to update transcript session: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("session with ID %s not found", session.ID)
	}

	return nil
}
