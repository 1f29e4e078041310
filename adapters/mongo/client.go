// Package mongo persists transcript sessions in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Config holds connection settings for the transcript store.
type Config struct {
	// URI falls back to the MONGODB_URI environment variable, then to a
	// local instance.
	URI string
	// Database falls back to the MONGODB_DATABASE environment variable.
	Database string
	// ConnectTimeout bounds dialing and the connection ping. Zero selects
	// 10 seconds.
	ConnectTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.URI == "" {
		c.URI = os.Getenv("MONGODB_URI")
	}
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.Database == "" {
		c.Database = os.Getenv("MONGODB_DATABASE")
	}
	if c.Database == "" {
		c.Database = "voicekit"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Client is a connected MongoDB handle scoped to one database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", cfg.Database))

	return &Client{
		client:   client,
		database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
