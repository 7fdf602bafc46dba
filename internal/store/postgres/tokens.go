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

type TokensStore struct {
	pool *pgxpool.Pool
}

func NewTokensStore(pool *pgxpool.Pool) *TokensStore {
	return &TokensStore{pool: pool}
}

// ReplaceToken discards any existing token for (email, kind) and inserts the
// new one in a single transaction, keeping at most one live token per pair
// under concurrent issuance.
func (s *TokensStore) ReplaceToken(ctx context.Context, token domain.OneTimeToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace token: %w", err)
	}
	defer tx.Rollback(ctx)

	const del = `DELETE FROM one_time_tokens WHERE email = $1 AND kind = $2`
	if _, err := tx.Exec(ctx, del, token.Email, token.Kind); err != nil {
		return fmt.Errorf("discard prior tokens: %w", err)
	}

	const ins = `
		INSERT INTO one_time_tokens (kind, email, secret, used, created_at, expires_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
	`
	if _, err := tx.Exec(ctx, ins, token.Kind, token.Email, token.Secret, token.CreatedAt, token.ExpiresAt); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace token: %w", err)
	}
	return nil
}

// GetLiveToken looks up an unused, unexpired token by kind and secret.
// An empty email matches any row (reset redemption carries only the secret).
func (s *TokensStore) GetLiveToken(ctx context.Context, kind domain.TokenKind, email, secret string, now time.Time) (domain.OneTimeToken, error) {
	const q = `
		SELECT id, kind, email, secret, used, created_at, expires_at
		FROM one_time_tokens
		WHERE kind = $1 AND secret = $2 AND ($3 = '' OR email = $3)
		  AND used = FALSE AND expires_at > $4
		LIMIT 1
	`

	var (
		token  domain.OneTimeToken
		idUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, kind, secret, email, now).Scan(
		&idUUID,
		&token.Kind,
		&token.Email,
		&token.Secret,
		&token.Used,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OneTimeToken{}, domain.ErrNotFound
		}
		return domain.OneTimeToken{}, fmt.Errorf("get live token: %w", err)
	}

	token.ID = uuidOrEmpty(idUUID)
	return token, nil
}

func (s *TokensStore) MarkTokenUsed(ctx context.Context, id string) error {
	const q = `
		UPDATE one_time_tokens
		SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
