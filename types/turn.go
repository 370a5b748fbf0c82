package types

import (
	"time"

	"github.com/google/uuid"
)

// Speaker sentinels for turns not produced by a persona.
const (
	UserSpeakerID   = "user"
	SystemSpeakerID = "system"
)

// Turn is one utterance in a conversation.
type Turn struct {
	ID          string    `json:"id" bson:"id"`
	ChatID      string    `json:"chat_id,omitempty" bson:"chat_id"`
	Seq         int64     `json:"seq" bson:"seq"`
	SpeakerID   string    `json:"speaker_id" bson:"speaker_id"`
	SpeakerName string    `json:"speaker_name,omitempty" bson:"speaker_name"`
	Text        string    `json:"text" bson:"text"`
	System      bool      `json:"system,omitempty" bson:"system"`
	Summary     bool      `json:"summary,omitempty" bson:"summary"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// NewUserTurn builds the turn for an inbound user message.
func NewUserTurn(chatID, text string, at time.Time) Turn {
	return Turn{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SpeakerID:   UserSpeakerID,
		SpeakerName: "User",
		Text:        text,
		Timestamp:   at,
	}
}

// NewPersonaTurn builds a turn produced by a persona.
func NewPersonaTurn(chatID string, p Persona, text string, at time.Time) Turn {
	return Turn{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SpeakerID:   p.ID,
		SpeakerName: p.DisplayName(),
		Text:        text,
		Timestamp:   at,
	}
}

// NewSystemTurn builds a system-flagged notice.
func NewSystemTurn(chatID, text string, at time.Time) Turn {
	return Turn{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SpeakerID:   SystemSpeakerID,
		SpeakerName: "System",
		Text:        text,
		System:      true,
		Timestamp:   at,
	}
}

// IsUser reports whether the turn was authored by the human user.
func (t Turn) IsUser() bool {
	return t.SpeakerID == UserSpeakerID
}

// CloneTurns returns a copy of the slice.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
