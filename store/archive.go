package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bizbot-il/bizbot/model"
)

// Archive mirrors conversation messages into MongoDB so long chat
// histories can be analyzed off the production SQLite file. It is
// optional; the bot runs fully without it.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ArchiveConfig holds the MongoDB mirror settings.
type ArchiveConfig struct {
	URI        string
	Database   string // default "bizbot"
	Collection string // default "conversation_archive"
	Timeout    time.Duration
}

// NewArchive connects to MongoDB and prepares the mirror collection.
func NewArchive(config ArchiveConfig) (*Archive, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("archive requires a MongoDB URI")
	}
	if config.Database == "" {
		config.Database = "bizbot"
	}
	if config.Collection == "" {
		config.Collection = "conversation_archive"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)

	a := &Archive{
		client:     client,
		collection: collection,
	}

	if err := a.initIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return a, nil
}

// initIndexes creates the lookup indexes the archive queries use.
func (a *Archive) initIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "message_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create user_id index: %w", err)
	}

	_, err = a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}
	return nil
}

// archivedMessage is the BSON shape of one mirrored message.
type archivedMessage struct {
	MessageID int64     `bson:"message_id"`
	UserID    int64     `bson:"user_id"`
	Username  string    `bson:"username,omitempty"`
	Role      string    `bson:"role"`
	Text      string    `bson:"text"`
	Sources   []string  `bson:"sources,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// SaveMessage mirrors one message. The SQLite row id becomes the
// message_id so the two stores stay joinable.
func (a *Archive) SaveMessage(ctx context.Context, m model.Message) error {
	doc := archivedMessage{
		MessageID: m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Role:      string(m.Role),
		Text:      m.Text,
		Sources:   m.Sources,
		CreatedAt: m.CreatedAt,
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

// UserHistory reads a user's mirrored messages, oldest first.
func (a *Archive) UserHistory(ctx context.Context, userID int64) ([]model.Message, error) {
	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "message_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []model.Message
	for cursor.Next(ctx) {
		var doc archivedMessage
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode archived message: %w", err)
		}
		messages = append(messages, model.Message{
			ID:        doc.MessageID,
			UserID:    doc.UserID,
			Username:  doc.Username,
			Role:      model.Role(doc.Role),
			Text:      doc.Text,
			Sources:   doc.Sources,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive: %w", err)
	}
	return messages, nil
}

// Close disconnects from MongoDB.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
