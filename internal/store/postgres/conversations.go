package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legalchat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationsStore struct {
	pool *pgxpool.Pool
}

func NewConversationsStore(pool *pgxpool.Pool) *ConversationsStore {
	return &ConversationsStore{pool: pool}
}

const conversationColumns = `id, user_id, name, remote_id, created_at, updated_at`

func (s *ConversationsStore) CreateConversation(ctx context.Context, userID, name string) (domain.Conversation, error) {
	const q = `
		INSERT INTO conversations (user_id, name)
		VALUES ($1, $2)
		RETURNING ` + conversationColumns

	c, err := scanConversation(s.pool.QueryRow(ctx, q, userID, name))
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// GetConversation is owner-scoped; a conversation belonging to another user
// is indistinguishable from a missing one.
func (s *ConversationsStore) GetConversation(ctx context.Context, id, userID string) (domain.Conversation, error) {
	const q = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND user_id = $2`

	c, err := scanConversation(s.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, domain.ErrNotFound
		}
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationsStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	const q = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC NULLS LAST
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (s *ConversationsStore) SetRemoteID(ctx context.Context, id, remoteID string) error {
	const q = `
		UPDATE conversations
		SET remote_id = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, id, remoteID)
	if err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ConversationsStore) RenameConversation(ctx context.Context, id, userID, name string, when time.Time) (domain.Conversation, error) {
	const q = `
		UPDATE conversations
		SET name = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING ` + conversationColumns

	c, err := scanConversation(s.pool.QueryRow(ctx, q, id, userID, name, when))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, domain.ErrNotFound
		}
		return domain.Conversation{}, fmt.Errorf("rename conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationsStore) TouchConversation(ctx context.Context, id string, when time.Time) error {
	const q = `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id, when); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and its messages together.
func (s *ConversationsStore) DeleteConversation(ctx context.Context, id, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete conversation: %w", err)
	}
	defer tx.Rollback(ctx)

	const delMsgs = `
		DELETE FROM messages
		WHERE conversation_id IN (SELECT id FROM conversations WHERE id = $1 AND user_id = $2)
	`
	if _, err := tx.Exec(ctx, delMsgs, id, userID); err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}

	const delConv = `DELETE FROM conversations WHERE id = $1 AND user_id = $2`
	tag, err := tx.Exec(ctx, delConv, id, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete conversation: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var (
		c          domain.Conversation
		idUUID     pgtype.UUID
		userIDUUID pgtype.UUID
		remoteT    pgtype.Text
	)
	err := row.Scan(&idUUID, &userIDUUID, &c.Name, &remoteT, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, err
	}

	c.ID = uuidOrEmpty(idUUID)
	c.UserID = uuidOrEmpty(userIDUUID)
	c.RemoteID = textOrEmpty(remoteT)
	return c, nil
}
