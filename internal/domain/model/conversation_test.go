package model

import (
	"strings"
	"testing"
)

func TestConversationAppendUpdatesHistory(t *testing.T) {
	c := NewConversation("lead-1", "+15550001111")
	if c.State != ConversationActive {
		t.Fatalf("new conversation state = %q", c.State)
	}
	c.Append("user", "hello")
	c.Append("assistant", "hi!")
	if len(c.History) != 2 {
		t.Fatalf("history = %d turns", len(c.History))
	}
	if got := c.RecentTurns(1); len(got) != 1 || got[0].Content != "hi!" {
		t.Fatalf("RecentTurns(1) = %+v", got)
	}
	if got := c.RecentTurns(10); len(got) != 2 {
		t.Fatalf("RecentTurns beyond length should return all: %+v", got)
	}
}

func TestHandoffSummaryCollectsUnresolvedQueries(t *testing.T) {
	c := NewConversation("lead-1", "+15550001111")
	c.Append("user", "do you deliver?")
	c.Append("assistant", "yes, city-wide")
	c.Append("user", "what about weekends?")
	c.Append("user", "and holidays?")
	c.LastConfidence = 0.42

	s := BuildHandoffSummary(c, "consecutive low-confidence responses", AIResponseMetadata{
		SuggestedActions: []string{"confirm schedule"},
	})
	if s.MessageCount != 4 {
		t.Fatalf("message count = %d", s.MessageCount)
	}
	if len(s.UnresolvedQueries) != 2 {
		t.Fatalf("unresolved = %v", s.UnresolvedQueries)
	}
	if s.UnresolvedQueries[0] != "what about weekends?" || s.UnresolvedQueries[1] != "and holidays?" {
		t.Fatalf("unresolved out of order: %v", s.UnresolvedQueries)
	}
	if s.LastConfidence != 0.42 {
		t.Fatalf("confidence = %v", s.LastConfidence)
	}

	body := s.Render()
	for _, want := range []string{"lead-1", "what about weekends?", "confirm schedule", "0.42"} {
		if !strings.Contains(body, want) {
			t.Fatalf("rendered summary missing %q: %s", want, body)
		}
	}
}

func TestHandoffSummaryNoAssistantTurns(t *testing.T) {
	c := NewConversation("lead-1", "+15550001111")
	c.Append("user", "anyone there?")

	s := BuildHandoffSummary(c, "handoff keyword: human", AIResponseMetadata{})
	if len(s.UnresolvedQueries) != 1 || s.UnresolvedQueries[0] != "anyone there?" {
		t.Fatalf("unresolved = %v", s.UnresolvedQueries)
	}
}
