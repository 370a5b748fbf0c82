package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/roundtable/types"
)

const (
	mongoSessionsCollection = "chat_sessions"
	mongoTurnsCollection    = "chat_turns"
	mongoCountersCollection = "chat_counters"
)

// MongoStore 是基于 MongoDB 的 ChatStore 实现。
// 会话以 _id = chatID 存储；发言序号由 chat_counters 集合中的 $inc 计数器分配。
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	turns    *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// NewMongoStore 连接 MongoDB 并确保索引存在
func NewMongoStore(ctx context.Context, cfg MongoStoreConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", ErrInvalidInput)
	}
	if cfg.Database == "" {
		cfg.Database = "roundtable"
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := newMongoStore(client, cfg.Database)
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func newMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		sessions: db.Collection(mongoSessionsCollection),
		turns:    db.Collection(mongoTurnsCollection),
		counters: db.Collection(mongoCountersCollection),
		now:      time.Now,
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.turns.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_chat_turns_chat_seq"),
	})
	if err != nil {
		return fmt.Errorf("failed to create turn index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) SaveSession(ctx context.Context, session *types.ChatSession) error {
	if err := prepareSession(session, s.now()); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"title":            session.Title,
			"members":          session.Members,
			"settings":         session.Settings,
			"policy":           session.Policy,
			"fixed_order":      session.FixedOrder,
			"summary_agent_id": session.SummaryAgentID,
			"updated_at":       session.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": session.CreatedAt},
	}
	_, err := s.sessions.UpdateOne(ctx, bson.M{"_id": session.ID}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *MongoStore) GetSession(ctx context.Context, chatID string) (*types.ChatSession, error) {
	var session types.ChatSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": chatID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *MongoStore) ListSessions(ctx context.Context) ([]*types.ChatSession, error) {
	cur, err := s.sessions.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*types.ChatSession
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.ChatSession{}
	}
	return out, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, chatID string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return err
	}
	if _, err := s.turns.DeleteMany(ctx, bson.M{"chat_id": chatID}); err != nil {
		return err
	}
	if _, err := s.counters.DeleteOne(ctx, bson.M{"_id": chatID}); err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	if len(turns) == 0 {
		return []types.Turn{}, nil
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": chatID},
		bson.M{"$inc": bson.M{"seq": int64(len(turns))}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return nil, fmt.Errorf("allocate turn sequence: %w", err)
	}

	out, err := prepareTurns(chatID, turns, counter.Seq-int64(len(turns))+1)
	if err != nil {
		return nil, err
	}
	if _, err := s.turns.InsertMany(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ListTurns(ctx context.Context, chatID string) ([]types.Turn, error) {
	cur, err := s.turns.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []types.Turn{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
