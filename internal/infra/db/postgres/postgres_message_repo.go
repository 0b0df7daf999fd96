// File: internal/infra/db/postgres/postgres_message_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lead-sms-pipeline/internal/domain"
	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Save(ctx context.Context, m *model.Message) error {
	const q = `
INSERT INTO messages (id, lead_id, direction, type, content, status, provider_message_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),COALESCE($8,NOW()),COALESCE($9,NOW()));`
	_, err := r.pool.Exec(ctx, q,
		m.ID, m.LeadID, string(m.Direction), string(m.Type), m.Content,
		string(m.Status), m.ProviderMessageID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, id string, status model.MessageStatus, providerMessageID string) error {
	const q = `
UPDATE messages SET status=$2, provider_message_id=COALESCE(NULLIF($3,''), provider_message_id), updated_at=NOW()
WHERE id=$1;`
	tag, err := r.pool.Exec(ctx, q, id, string(status), providerMessageID)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) FindByLead(ctx context.Context, leadID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, lead_id, direction, type, content, status, COALESCE(provider_message_id,''), created_at, updated_at
FROM messages WHERE lead_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, leadID, limit)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var dir, typ, st string
		if err := rows.Scan(&m.ID, &m.LeadID, &dir, &typ, &m.Content, &st, &m.ProviderMessageID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Direction = model.MessageDirection(dir)
		m.Type = model.MessageType(typ)
		m.Status = model.MessageStatus(st)
		out = append(out, &m)
	}
	return out, rows.Err()
}
