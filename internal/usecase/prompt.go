package usecase

import (
	"strconv"
	"strings"

	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
)

// PromptType selects the system prompt used for a generation call.
type PromptType string

const (
	PromptTypeReply    PromptType = "reply"
	PromptTypeFollowUp PromptType = "follow_up"
)

const replyPrompt = `You are an SMS assistant for a lead-capture platform, texting with lead {{lead_id}}.
Answer the lead's latest message helpfully and concisely. Keep replies under two sentences
where possible; this is SMS. Never invent pricing or availability. If you cannot help,
say so plainly.`

const followUpPrompt = `You are an SMS assistant for a lead-capture platform, re-engaging lead {{lead_id}}
after {{message_count}} messages of silence. Write one short, friendly follow-up that invites
a reply without being pushy.`

const classifyPrompt = `Assess the assistant reply below given the conversation. Respond with strict JSON only:
{"confidence": <0..1>, "intent": "<short label>", "suggested_actions": ["..."], "requires_human": <bool>}
confidence is how likely the reply correctly addresses the lead; requires_human is true when
an agent should step in.`

func systemPromptFor(t PromptType, c *model.Conversation) string {
	tmpl := replyPrompt
	if t == PromptTypeFollowUp {
		tmpl = followUpPrompt
	}
	r := strings.NewReplacer(
		"{{lead_id}}", c.LeadID,
		"{{message_count}}", strconv.Itoa(len(c.History)),
	)
	return r.Replace(tmpl)
}

// historyWindow returns the most recent turns whose contents fit within the
// character budget. Truncation is most-recent-first: older turns drop out
// before newer ones.
func historyWindow(c *model.Conversation, budget int) []adapter.Message {
	turns := c.History
	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		used += len(turns[i].Content)
		if used > budget {
			break
		}
		start = i
	}
	out := make([]adapter.Message, 0, len(turns)-start)
	for _, t := range turns[start:] {
		role := t.Role
		if role == "system" {
			// Handoff notices and other system turns are operator-facing;
			// they are not part of the model conversation.
			continue
		}
		out = append(out, adapter.Message{Role: role, Content: t.Content})
	}
	return out
}
