package redis

import (
	"context"
	"time"
)

// PromptCache memoizes constructed prompt strings for a short window to
// avoid redundant template work under burst traffic.
type PromptCache struct {
	client *Client
	ttl    time.Duration
}

func NewPromptCache(client *Client, ttl time.Duration) *PromptCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PromptCache{client: client, ttl: ttl}
}

func (p *PromptCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := p.client.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return v, true
}

func (p *PromptCache) Set(ctx context.Context, key, prompt string) {
	// Best-effort; a miss only costs a template rebuild.
	_ = p.client.Set(ctx, key, prompt, p.ttl)
}
