package types

import (
	"fmt"
	"strings"
	"time"
)

// OrderingPolicy selects how the speech queue is built.
type OrderingPolicy string

const (
	PolicyFixed          OrderingPolicy = "fixed"
	PolicyRandom         OrderingPolicy = "random"
	PolicyAutoDiscussion OrderingPolicy = "auto_discussion"
)

// Valid reports whether p is a known policy.
func (p OrderingPolicy) Valid() bool {
	switch p {
	case PolicyFixed, PolicyRandom, PolicyAutoDiscussion:
		return true
	}
	return false
}

// MemberSettings holds per-member scheduling options.
type MemberSettings struct {
	ReplyCount int `json:"reply_count" yaml:"reply_count" bson:"reply_count"`
}

// ChatSession carries the roster and ordering policy of one chat.
type ChatSession struct {
	ID             string                    `json:"id" bson:"_id"`
	Title          string                    `json:"title,omitempty" bson:"title"`
	Members        []string                  `json:"members" bson:"members"`
	Settings       map[string]MemberSettings `json:"settings,omitempty" bson:"settings"`
	Policy         OrderingPolicy            `json:"policy" bson:"policy"`
	FixedOrder     []string                  `json:"fixed_order,omitempty" bson:"fixed_order"`
	SummaryAgentID string                    `json:"summary_agent_id,omitempty" bson:"summary_agent_id"`
	CreatedAt      time.Time                 `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at" bson:"updated_at"`
}

// MemberReplyCount returns how many queue entries a member contributes,
// at least one.
func MemberReplyCount(settings map[string]MemberSettings, personaID string) int {
	if ms, ok := settings[personaID]; ok && ms.ReplyCount > 1 {
		return ms.ReplyCount
	}
	return 1
}

// HasMember reports whether personaID is on the roster.
func (s *ChatSession) HasMember(personaID string) bool {
	for _, id := range s.Members {
		if id == personaID {
			return true
		}
	}
	return false
}

// Validate checks the session settings.
func (s *ChatSession) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if s.Policy == "" {
		s.Policy = PolicyFixed
	}
	if !s.Policy.Valid() {
		return fmt.Errorf("unknown ordering policy %q", s.Policy)
	}
	seen := make(map[string]struct{}, len(s.Members))
	for _, id := range s.Members {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("roster contains an empty persona id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("persona %s listed twice in roster", id)
		}
		seen[id] = struct{}{}
	}
	for id, ms := range s.Settings {
		if ms.ReplyCount < 0 {
			return fmt.Errorf("member %s: reply_count must be >= 1", id)
		}
	}
	return nil
}
