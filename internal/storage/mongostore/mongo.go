package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vanishbin/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a single MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// document is the persisted shape. Absent limits are omitted so that
// "$exists" filters can tell them apart from stored values.
type document struct {
	ID         string     `bson:"_id"`
	Content    string     `bson:"content"`
	TTLSeconds int        `bson:"ttl_seconds,omitempty"`
	MaxViews   int        `bson:"max_views,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"`
	Views      int        `bson:"views"`
}

// Open connects to uri and uses database/collection for pastes.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Create inserts a new paste document.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if _, err := s.collection.InsertOne(ctx, toDocument(paste)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("insert paste: %w", err)
	}
	return nil
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find paste: %w", err)
	}
	return doc.paste(), nil
}

// UpdateDeadline overwrites the stored deadline.
func (s *Store) UpdateDeadline(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"expires_at": expiresAt.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update deadline: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementViews runs a guarded $inc so concurrent readers can never push
// the counter past maxViews.
func (s *Store) IncrementViews(ctx context.Context, id string, maxViews int) (int, error) {
	filter := bson.M{"_id": id}
	if maxViews > 0 {
		filter["views"] = bson.M{"$lt": maxViews}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"views": 1}}, opts).Decode(&doc)
	if err == nil {
		return doc.Views, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("increment views: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return current.Views, storage.ErrViewLimitReached
}

// Ping checks connectivity with the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toDocument(p *storage.Paste) document {
	doc := document{
		ID:         p.ID,
		Content:    p.Content,
		TTLSeconds: p.TTLSeconds,
		MaxViews:   p.MaxViews,
		CreatedAt:  p.CreatedAt.UTC(),
		Views:      p.Views,
	}
	if p.HasExpiration() {
		t := p.ExpiresAt.UTC()
		doc.ExpiresAt = &t
	}
	return doc
}

func (d document) paste() *storage.Paste {
	p := &storage.Paste{
		ID:         d.ID,
		Content:    d.Content,
		TTLSeconds: d.TTLSeconds,
		MaxViews:   d.MaxViews,
		CreatedAt:  d.CreatedAt.UTC(),
		Views:      d.Views,
	}
	if d.ExpiresAt != nil {
		p.ExpiresAt = d.ExpiresAt.UTC()
	}
	return p
}
