package redis

import (
	"context"
	"encoding/json"
	"time"

	"lead-sms-pipeline/internal/domain/model"
)

// ConversationCache keeps hot conversation threads in Redis. The TTL doubles
// as the idle-eviction policy bounding per-lead state growth.
type ConversationCache struct {
	client *Client
	ttl    time.Duration
}

func NewConversationCache(client *Client, ttl time.Duration) *ConversationCache {
	return &ConversationCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ConversationCache) Store(ctx context.Context, conv *model.Conversation) error {
	key := "conversation:" + conv.LeadID
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

func (c *ConversationCache) Get(ctx context.Context, leadID string) (*model.Conversation, error) {
	key := "conversation:" + leadID
	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *ConversationCache) Delete(ctx context.Context, leadID string) error {
	return c.client.Del(ctx, "conversation:"+leadID)
}

func (c *ConversationCache) Extend(ctx context.Context, leadID string) error {
	return c.client.Expire(ctx, "conversation:"+leadID, c.ttl)
}
