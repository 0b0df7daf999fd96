// File: internal/infra/db/postgres/postgres_conversation_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lead-sms-pipeline/internal/domain"
	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/repository"
	"lead-sms-pipeline/internal/infra/redis"
)

// ConversationRepo persists conversation threads with a Redis write-through
// cache in front of postgres. The low-confidence streak is deliberately not
// a column: it is transient state that resets on restart.
var _ repository.ConversationRepository = (*ConversationRepo)(nil)

type ConversationRepo struct {
	pool  *pgxpool.Pool
	cache *redis.ConversationCache
}

func NewPostgresConversationRepo(pool *pgxpool.Pool, cache *redis.ConversationCache) *ConversationRepo {
	return &ConversationRepo{pool: pool, cache: cache}
}

func (r *ConversationRepo) Save(ctx context.Context, c *model.Conversation) error {
	const q = `
INSERT INTO conversations (lead_id, phone, state, created_at, updated_at, takeover_at)
VALUES ($1,$2,$3,COALESCE($4,NOW()),COALESCE($5,NOW()),$6)
ON CONFLICT (lead_id) DO UPDATE SET
  phone = EXCLUDED.phone,
  state = EXCLUDED.state,
  updated_at = EXCLUDED.updated_at,
  takeover_at = EXCLUDED.takeover_at;`
	_, err := r.pool.Exec(ctx, q, c.LeadID, c.Phone, string(c.State), c.CreatedAt, c.UpdatedAt, c.TakeoverAt)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, c)
	}
	return nil
}

func (r *ConversationRepo) FindByLead(ctx context.Context, leadID string) (*model.Conversation, error) {
	if r.cache != nil {
		if c, err := r.cache.Get(ctx, leadID); err == nil {
			_ = r.cache.Extend(ctx, leadID)
			return c, nil
		}
	}

	const q = `SELECT lead_id, phone, state, created_at, updated_at, takeover_at FROM conversations WHERE lead_id=$1;`
	var c model.Conversation
	var state string
	err := r.pool.QueryRow(ctx, q, leadID).Scan(&c.LeadID, &c.Phone, &state, &c.CreatedAt, &c.UpdatedAt, &c.TakeoverAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	c.State = model.ConversationState(state)

	const qTurns = `SELECT role, content, created_at FROM conversation_turns WHERE lead_id=$1 ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, qTurns, leadID)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		c.History = append(c.History, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Store(ctx, &c)
	}
	return &c, nil
}

func (r *ConversationRepo) AppendTurn(ctx context.Context, leadID string, t model.Turn) error {
	const q = `INSERT INTO conversation_turns (lead_id, role, content, created_at) VALUES ($1,$2,$3,COALESCE($4,NOW()));`
	if _, err := r.pool.Exec(ctx, q, leadID, t.Role, t.Content, t.Timestamp); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}
