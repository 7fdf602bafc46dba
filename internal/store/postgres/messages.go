package postgres

import (
	"context"
	"fmt"

	"legalchat/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessagesStore struct {
	pool *pgxpool.Pool
}

func NewMessagesStore(pool *pgxpool.Pool) *MessagesStore {
	return &MessagesStore{pool: pool}
}

func (s *MessagesStore) CreateMessage(ctx context.Context, conversationID, remoteID, query, answer string) (domain.Message, error) {
	const q = `
		INSERT INTO messages (conversation_id, remote_id, query, answer)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, remote_id, query, answer, created_at
	`

	var (
		m          domain.Message
		idUUID     pgtype.UUID
		convIDUUID pgtype.UUID
		remoteT    pgtype.Text
	)
	err := s.pool.QueryRow(ctx, q, conversationID, nullIfEmpty(remoteID), query, answer).Scan(
		&idUUID,
		&convIDUUID,
		&remoteT,
		&m.Query,
		&m.Answer,
		&m.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}

	m.ID = uuidOrEmpty(idUUID)
	m.ConversationID = uuidOrEmpty(convIDUUID)
	m.RemoteID = textOrEmpty(remoteT)
	return m, nil
}

func (s *MessagesStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const q = `
		SELECT id, conversation_id, remote_id, query, answer, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m          domain.Message
			idUUID     pgtype.UUID
			convIDUUID pgtype.UUID
			remoteT    pgtype.Text
		)
		if err := rows.Scan(&idUUID, &convIDUUID, &remoteT, &m.Query, &m.Answer, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = uuidOrEmpty(idUUID)
		m.ConversationID = uuidOrEmpty(convIDUUID)
		m.RemoteID = textOrEmpty(remoteT)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}
