package persistence

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/roundtable/types"
)

var baseTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newSession(id string) *types.ChatSession {
	return &types.ChatSession{
		ID:             id,
		Title:          "Session " + id,
		Members:        []string{"alice", "bob"},
		Settings:       map[string]types.MemberSettings{"alice": {ReplyCount: 2}},
		Policy:         types.PolicyRandom,
		FixedOrder:     []string{"bob", "alice"},
		SummaryAgentID: "alice",
	}
}

func newTurns(chatID string, texts ...string) []types.Turn {
	out := make([]types.Turn, 0, len(texts))
	for i, text := range texts {
		at := baseTime.Add(time.Duration(i) * time.Second)
		if i == 0 {
			out = append(out, types.NewUserTurn(chatID, text, at))
			continue
		}
		out = append(out, types.NewPersonaTurn(chatID, types.Persona{ID: "alice", Name: "Alice"}, text, at))
	}
	return out
}

// runChatStoreContract exercises the behavior every backend must share.
func runChatStoreContract(t *testing.T, store ChatStore) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))
	})

	t.Run("SaveAndGetSession", func(t *testing.T) {
		s := newSession("chat-a")
		require.NoError(t, store.SaveSession(ctx, s))
		assert.False(t, s.CreatedAt.IsZero())

		got, err := store.GetSession(ctx, "chat-a")
		require.NoError(t, err)
		assert.Equal(t, "Session chat-a", got.Title)
		assert.Equal(t, []string{"alice", "bob"}, got.Members)
		assert.Equal(t, 2, got.Settings["alice"].ReplyCount)
		assert.Equal(t, types.PolicyRandom, got.Policy)
		assert.Equal(t, []string{"bob", "alice"}, got.FixedOrder)
		assert.Equal(t, "alice", got.SummaryAgentID)
	})

	t.Run("UpdateSessionKeepsCreatedAt", func(t *testing.T) {
		before, err := store.GetSession(ctx, "chat-a")
		require.NoError(t, err)

		s := newSession("chat-a")
		s.Title = "Renamed"
		s.Policy = types.PolicyAutoDiscussion
		require.NoError(t, store.SaveSession(ctx, s))

		after, err := store.GetSession(ctx, "chat-a")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", after.Title)
		assert.Equal(t, types.PolicyAutoDiscussion, after.Policy)
		assert.WithinDuration(t, before.CreatedAt, after.CreatedAt, time.Millisecond)
	})

	t.Run("InvalidSession", func(t *testing.T) {
		err := store.SaveSession(ctx, &types.ChatSession{ID: "bad", Members: []string{"a", "a"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, store.SaveSession(ctx, nil), ErrInvalidInput)
	})

	t.Run("GetMissingSession", func(t *testing.T) {
		_, err := store.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AppendAndListTurns", func(t *testing.T) {
		first, err := store.AppendTurns(ctx, "chat-a", newTurns("", "hello", "hi there"))
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, int64(1), first[0].Seq)
		assert.Equal(t, int64(2), first[1].Seq)
		assert.Equal(t, "chat-a", first[0].ChatID)

		second, err := store.AppendTurns(ctx, "chat-a", newTurns("chat-a", "next", "reply", "another"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), second[0].Seq)
		assert.Equal(t, int64(5), second[2].Seq)

		turns, err := store.ListTurns(ctx, "chat-a")
		require.NoError(t, err)
		require.Len(t, turns, 5)
		texts := make([]string, 0, len(turns))
		for i, turn := range turns {
			assert.Equal(t, int64(i+1), turn.Seq)
			texts = append(texts, turn.Text)
		}
		assert.Equal(t, []string{"hello", "hi there", "next", "reply", "another"}, texts)
		assert.True(t, turns[0].IsUser())
		assert.Equal(t, "Alice", turns[1].SpeakerName)
	})

	t.Run("FlagsSurvive", func(t *testing.T) {
		sys := types.NewSystemTurn("chat-b", "paused", baseTime)
		sum := types.NewPersonaTurn("chat-b", types.Persona{ID: "alice"}, "[Summary] done", baseTime)
		sum.Summary = true
		_, err := store.AppendTurns(ctx, "chat-b", []types.Turn{sys, sum})
		require.NoError(t, err)

		turns, err := store.ListTurns(ctx, "chat-b")
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.True(t, turns[0].System)
		assert.False(t, turns[0].Summary)
		assert.True(t, turns[1].Summary)
		assert.WithinDuration(t, baseTime, turns[0].Timestamp, time.Second)
	})

	t.Run("AppendRejectsBadInput", func(t *testing.T) {
		_, err := store.AppendTurns(ctx, "", newTurns("", "x"))
		assert.ErrorIs(t, err, ErrInvalidInput)

		out, err := store.AppendTurns(ctx, "chat-a", nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("ListTurnsUnknownChat", func(t *testing.T) {
		turns, err := store.ListTurns(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, turns)
	})

	t.Run("ListSessions", func(t *testing.T) {
		require.NoError(t, store.SaveSession(ctx, newSession("chat-z")))
		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		assert.ElementsMatch(t, []string{"chat-a", "chat-z"}, ids)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		require.NoError(t, store.DeleteSession(ctx, "chat-a"))

		_, err := store.GetSession(ctx, "chat-a")
		assert.ErrorIs(t, err, ErrNotFound)
		turns, err := store.ListTurns(ctx, "chat-a")
		require.NoError(t, err)
		assert.Empty(t, turns)

		assert.ErrorIs(t, store.DeleteSession(ctx, "chat-a"), ErrNotFound)
	})

	t.Run("SeqRestartsAfterDelete", func(t *testing.T) {
		require.NoError(t, store.SaveSession(ctx, newSession("chat-a")))
		out, err := store.AppendTurns(ctx, "chat-a", newTurns("chat-a", "again"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), out[0].Seq)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runChatStoreContract(t, store)
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
	assert.ErrorIs(t, store.SaveSession(ctx, newSession("x")), ErrStoreClosed)
	_, err := store.ListTurns(ctx, "x")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, newSession("c")))

	got, err := store.GetSession(ctx, "c")
	require.NoError(t, err)
	got.Members[0] = "mallory"
	got.Settings["alice"] = types.MemberSettings{ReplyCount: 9}

	again, err := store.GetSession(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Members[0])
	assert.Equal(t, 2, again.Settings["alice"].ReplyCount)
}

func TestFileStore(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Type = StoreTypeFile
	cfg.BaseDir = t.TempDir()

	store, err := NewFileStore(cfg)
	require.NoError(t, err)
	runChatStoreContract(t, store)
	require.NoError(t, store.Close())

	// a fresh store reloads the snapshot
	reopened, err := NewFileStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	ctx := context.Background()
	s, err := reopened.GetSession(ctx, "chat-z")
	require.NoError(t, err)
	assert.Equal(t, "Session chat-z", s.Title)
	turns, err := reopened.ListTurns(ctx, "chat-b")
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	_, err = os.Stat(reopened.indexPath())
	assert.NoError(t, err)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:")
	runChatStoreContract(t, store)

	assert.True(t, mr.Exists("test:session:chat-z"))
	assert.True(t, mr.Exists("test:turns:chat-b"))
}

func TestDialRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := DialRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "")
	require.NoError(t, err)
	assert.Equal(t, "roundtable:", store.keyPrefix)
	require.NoError(t, store.Close())

	mr.Close()
	_, err = DialRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "")
	assert.Error(t, err)
}

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewSQLStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestSQLStore(t *testing.T) {
	runChatStoreContract(t, setupSQLStore(t))
}

func TestSQLStore_DuplicateTurnID(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	turns := newTurns("c", "once")
	_, err := store.AppendTurns(ctx, "c", turns)
	require.NoError(t, err)

	_, err = store.AppendTurns(ctx, "c", turns)
	assert.Error(t, err)

	listed, err := store.ListTurns(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, listed, 1, "failed append is rolled back")
}

// MongoDB needs a live server; set ROUNDTABLE_TEST_MONGO_URI to run it.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("ROUNDTABLE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ROUNDTABLE_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	store, err := NewMongoStore(ctx, MongoStoreConfig{
		URI:      uri,
		Database: fmt.Sprintf("roundtable_test_%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	defer func() {
		_ = store.sessions.Database().Drop(ctx)
		_ = store.Close()
	}()

	runChatStoreContract(t, store)
}

func TestNewMongoStore_RequiresURI(t *testing.T) {
	_, err := NewMongoStore(context.Background(), MongoStoreConfig{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewChatStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewChatStore(ctx, StoreConfig{Type: StoreTypeMemory}, Backends{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewChatStore(ctx, StoreConfig{Type: StoreTypeRedis}, Backends{})
	assert.Error(t, err)

	_, err = NewChatStore(ctx, StoreConfig{Type: StoreTypeSQL}, Backends{})
	assert.Error(t, err)

	_, err = NewChatStore(ctx, StoreConfig{Type: "cassandra"}, Backends{})
	assert.EqualError(t, err, "unsupported chat store type: cassandra")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	store, err = NewChatStore(ctx, StoreConfig{Type: StoreTypeSQL, AutoMigrate: true}, Backends{DB: db})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("chat_turns"))
	_ = store.Close()
}
