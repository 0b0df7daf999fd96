package model

import (
	"fmt"
	"strings"
	"time"
)

type ConversationState string

const (
	ConversationActive        ConversationState = "active"
	ConversationPaused        ConversationState = "paused"
	ConversationHumanTakeover ConversationState = "human_takeover"
)

// Turn is one message within a conversation thread.
type Turn struct {
	Role      string // "user" | "assistant" | "system"
	Content   string
	Timestamp time.Time
}

// Conversation is the aggregate root for a lead's SMS thread. One instance
// per lead, created on the first inbound message, never deleted.
type Conversation struct {
	LeadID  string
	Phone   string
	State   ConversationState
	History []Turn

	// LowConfidenceStreak counts consecutive AI replies below the confidence
	// threshold. Transient: it is not persisted, so a process restart resets
	// streaks to zero.
	LowConfidenceStreak int
	LastConfidence      float64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	TakeoverAt *time.Time
}

func NewConversation(leadID, phone string) *Conversation {
	now := time.Now()
	return &Conversation{
		LeadID:    leadID,
		Phone:     phone,
		State:     ConversationActive,
		History:   make([]Turn, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) Append(role, content string) Turn {
	t := Turn{Role: role, Content: content, Timestamp: time.Now()}
	c.History = append(c.History, t)
	c.UpdatedAt = time.Now()
	return t
}

func (c *Conversation) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

func (c *Conversation) Duration() time.Duration {
	return c.UpdatedAt.Sub(c.CreatedAt)
}

// HandoffSummary is the structured briefing handed to a human agent when
// the AI relinquishes control of a thread.
type HandoffSummary struct {
	LeadID            string
	Reason            string
	Duration          time.Duration
	MessageCount      int
	LastConfidence    float64
	UnresolvedQueries []string
	SuggestedActions  []string
}

// BuildHandoffSummary collects the unresolved user turns (everything since
// the assistant last spoke) together with the last AI metadata.
func BuildHandoffSummary(c *Conversation, reason string, meta AIResponseMetadata) HandoffSummary {
	var unresolved []string
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Role == "assistant" {
			break
		}
		if c.History[i].Role == "user" {
			unresolved = append([]string{c.History[i].Content}, unresolved...)
		}
	}
	return HandoffSummary{
		LeadID:            c.LeadID,
		Reason:            reason,
		Duration:          c.Duration(),
		MessageCount:      len(c.History),
		LastConfidence:    c.LastConfidence,
		UnresolvedQueries: unresolved,
		SuggestedActions:  meta.SuggestedActions,
	}
}

// Render formats the summary as the body of the SYSTEM handoff message.
func (s HandoffSummary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Human takeover for lead %s (%s).", s.LeadID, s.Reason)
	fmt.Fprintf(&b, " Conversation: %d messages over %s, last AI confidence %.2f.",
		s.MessageCount, s.Duration.Round(time.Second), s.LastConfidence)
	if len(s.UnresolvedQueries) > 0 {
		fmt.Fprintf(&b, " Unresolved: %s.", strings.Join(s.UnresolvedQueries, " | "))
	}
	if len(s.SuggestedActions) > 0 {
		fmt.Fprintf(&b, " Suggested next actions: %s.", strings.Join(s.SuggestedActions, ", "))
	}
	return b.String()
}
