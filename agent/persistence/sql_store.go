package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/roundtable/types"
)

// chatSessionRecord 是 chat_sessions 表的 gorm 模型
type chatSessionRecord struct {
	ID             string                          `gorm:"primaryKey;size:64"`
	Title          string                          `gorm:"size:255"`
	Members        []string                        `gorm:"serializer:json"`
	Settings       map[string]types.MemberSettings `gorm:"serializer:json"`
	Policy         string                          `gorm:"size:32;not null"`
	FixedOrder     []string                        `gorm:"serializer:json"`
	SummaryAgentID string                          `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (chatSessionRecord) TableName() string { return "chat_sessions" }

// chatTurnRecord 是 chat_turns 表的 gorm 模型
type chatTurnRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ChatID      string    `gorm:"size:64;not null;uniqueIndex:idx_chat_turns_chat_seq,priority:1"`
	Seq         int64     `gorm:"not null;uniqueIndex:idx_chat_turns_chat_seq,priority:2"`
	SpeakerID   string    `gorm:"size:64;not null"`
	SpeakerName string    `gorm:"size:255"`
	Text        string    `gorm:"type:text"`
	IsSystem    bool      `gorm:"not null;default:false"`
	IsSummary   bool      `gorm:"not null;default:false"`
	SpokenAt    time.Time `gorm:"not null"`
}

func (chatTurnRecord) TableName() string { return "chat_turns" }

func sessionToRecord(s *types.ChatSession) chatSessionRecord {
	return chatSessionRecord{
		ID:             s.ID,
		Title:          s.Title,
		Members:        s.Members,
		Settings:       s.Settings,
		Policy:         string(s.Policy),
		FixedOrder:     s.FixedOrder,
		SummaryAgentID: s.SummaryAgentID,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (r chatSessionRecord) toSession() *types.ChatSession {
	return &types.ChatSession{
		ID:             r.ID,
		Title:          r.Title,
		Members:        r.Members,
		Settings:       r.Settings,
		Policy:         types.OrderingPolicy(r.Policy),
		FixedOrder:     r.FixedOrder,
		SummaryAgentID: r.SummaryAgentID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func turnToRecord(t types.Turn) chatTurnRecord {
	return chatTurnRecord{
		ID:          t.ID,
		ChatID:      t.ChatID,
		Seq:         t.Seq,
		SpeakerID:   t.SpeakerID,
		SpeakerName: t.SpeakerName,
		Text:        t.Text,
		IsSystem:    t.System,
		IsSummary:   t.Summary,
		SpokenAt:    t.Timestamp,
	}
}

func (r chatTurnRecord) toTurn() types.Turn {
	return types.Turn{
		ID:          r.ID,
		ChatID:      r.ChatID,
		Seq:         r.Seq,
		SpeakerID:   r.SpeakerID,
		SpeakerName: r.SpeakerName,
		Text:        r.Text,
		System:      r.IsSystem,
		Summary:     r.IsSummary,
		Timestamp:   r.SpokenAt,
	}
}

// SQLStore 通过 gorm 实现 ChatStore，支持 PostgreSQL、MySQL 与 SQLite。
// 表结构由 internal/migration 管理，也可以用 AutoMigrate 创建。
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// AutoMigrate 创建或更新 chat_sessions / chat_turns 表
func (s *SQLStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&chatSessionRecord{}, &chatTurnRecord{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// Close 不关闭共享的连接池，连接池由 database.PoolManager 管理
func (s *SQLStore) Close() error { return nil }

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) SaveSession(ctx context.Context, session *types.ChatSession) error {
	if err := prepareSession(session, s.now()); err != nil {
		return err
	}

	rec := sessionToRecord(session)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "members", "settings", "policy", "fixed_order", "summary_agent_id", "updated_at",
		}),
	}).Create(&rec).Error
}

func (s *SQLStore) GetSession(ctx context.Context, chatID string) (*types.ChatSession, error) {
	var rec chatSessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toSession(), nil
}

func (s *SQLStore) ListSessions(ctx context.Context) ([]*types.ChatSession, error) {
	var recs []chatSessionRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*types.ChatSession, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toSession())
	}
	return out, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, chatID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&chatTurnRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", chatID).Delete(&chatSessionRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	if len(turns) == 0 {
		return []types.Turn{}, nil
	}

	var out []types.Turn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&chatTurnRecord{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		prepared, err := prepareTurns(chatID, turns, last+1)
		if err != nil {
			return err
		}
		recs := make([]chatTurnRecord, 0, len(prepared))
		for _, t := range prepared {
			recs = append(recs, turnToRecord(t))
		}
		if err := tx.Create(&recs).Error; err != nil {
			return err
		}
		out = prepared
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) ListTurns(ctx context.Context, chatID string) ([]types.Turn, error) {
	var recs []chatTurnRecord
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]types.Turn, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toTurn())
	}
	return out, nil
}
