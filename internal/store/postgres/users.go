package postgres

import (
	"context"
	"errors"
	"fmt"

	"legalchat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userColumns = `
	id, email, username, password_hash, active, email_verified,
	provider, provider_id, display_name, avatar_url, created_at, updated_at
`

func (s *UsersStore) CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, username, password_hash, email_verified)
		VALUES ($1, $2, $3, FALSE)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, q, email, username, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapUserWriteError(err, "create user")
	}
	return u.User, nil
}

// CreateExternalUser inserts an identity with no password hash; the provider
// binding is its only way to authenticate, so email_verified starts true.
func (s *UsersStore) CreateExternalUser(ctx context.Context, email, username, provider, providerID, displayName, avatarURL string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, username, password_hash, email_verified, provider, provider_id, display_name, avatar_url)
		VALUES ($1, $2, '', TRUE, $3, $4, $5, $6)
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, q, email, username, provider, providerID, nullIfEmpty(displayName), nullIfEmpty(avatarURL))
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapUserWriteError(err, "create external user")
	}
	return u.User, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByProvider(ctx context.Context, provider, providerID string) (domain.UserWithPassword, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_id = $2 LIMIT 1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, provider, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by provider: %w", err)
	}
	return u, nil
}

// BindProvider attaches a provider identity to an existing account and
// refreshes the external profile. The provider is trusted as an email
// verifier, so the flag is forced on.
func (s *UsersStore) BindProvider(ctx context.Context, userID, provider, providerID, displayName, avatarURL string) (domain.User, error) {
	const q = `
		UPDATE users
		SET provider = $2, provider_id = $3,
		    display_name = COALESCE($4, display_name),
		    avatar_url = COALESCE($5, avatar_url),
		    email_verified = TRUE,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, q, userID, provider, providerID, nullIfEmpty(displayName), nullIfEmpty(avatarURL))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, mapUserWriteError(err, "bind provider")
	}
	return u.User, nil
}

// RefreshExternalProfile updates display name and avatar only; password
// hash and verified flag are untouched.
func (s *UsersStore) RefreshExternalProfile(ctx context.Context, userID, displayName, avatarURL string) (domain.User, error) {
	const q = `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
		    avatar_url = COALESCE($3, avatar_url),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	row := s.pool.QueryRow(ctx, q, userID, nullIfEmpty(displayName), nullIfEmpty(avatarURL))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("refresh external profile: %w", err)
	}
	return u.User, nil
}

// UnlinkProvider clears the external id and, when it still names this
// provider, the provider tag.
func (s *UsersStore) UnlinkProvider(ctx context.Context, userID, provider string) error {
	const q = `
		UPDATE users
		SET provider_id = NULL,
		    provider = CASE WHEN provider = $2 THEN NULL ELSE provider END,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, userID, provider)
	if err != nil {
		return fmt.Errorf("unlink provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UsersStore) SetEmailVerified(ctx context.Context, email string) error {
	const q = `
		UPDATE users
		SET email_verified = TRUE, updated_at = now()
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, q, email)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UsersStore) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	const q = `
		UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, q, email, passwordHash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.UserWithPassword, error) {
	var (
		u           domain.UserWithPassword
		idUUID      pgtype.UUID
		passwordT   pgtype.Text
		providerT   pgtype.Text
		providerIDT pgtype.Text
		displayT    pgtype.Text
		avatarT     pgtype.Text
	)
	err := row.Scan(
		&idUUID,
		&u.Email,
		&u.Username,
		&passwordT,
		&u.Active,
		&u.EmailVerified,
		&providerT,
		&providerIDT,
		&displayT,
		&avatarT,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.UserWithPassword{}, err
	}

	u.ID = uuidOrEmpty(idUUID)
	u.PasswordHash = textOrEmpty(passwordT)
	u.Provider = textOrEmpty(providerT)
	u.ProviderID = textOrEmpty(providerIDT)
	u.DisplayName = textOrEmpty(displayT)
	u.AvatarURL = textOrEmpty(avatarT)
	return u, nil
}

func mapUserWriteError(err error, op string) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_username_uq":
			return domain.ErrUsernameTaken
		case "users_email_uq":
			return domain.ErrEmailTaken
		case "users_provider_uq":
			return domain.ErrProviderLinked
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
