package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"legalchat/internal/domain"
)

type TokensStore interface {
	ReplaceToken(ctx context.Context, token domain.OneTimeToken) error
	GetLiveToken(ctx context.Context, kind domain.TokenKind, email, secret string, now time.Time) (domain.OneTimeToken, error)
	MarkTokenUsed(ctx context.Context, id string) error
}

// tokenPolicy captures what varies between token kinds: secret shape, TTL,
// and whether only a digest of the secret is stored.
type tokenPolicy struct {
	ttl          time.Duration
	generate     func() (string, error)
	storedDigest bool
}

var tokenPolicies = map[domain.TokenKind]tokenPolicy{
	// Reset secrets are high-entropy and land in URLs and mailboxes, so only
	// their digest is stored. Verification codes live in a 900000-value
	// space that is rate limited; they are stored in clear for lookup by
	// (email, code).
	domain.TokenKindReset: {
		ttl:          time.Hour,
		generate:     newResetSecret,
		storedDigest: true,
	},
	domain.TokenKindVerification: {
		ttl:      15 * time.Minute,
		generate: newVerificationCode,
	},
}

// TokenService is the ledger of single-use email-bound tokens. Issuing a
// token for an (email, kind) pair discards any prior token for that pair.
type TokenService struct {
	Store TokensStore
	Now   func() time.Time
}

// Issue creates a fresh token and returns the plaintext secret for
// out-of-band delivery.
func (s *TokenService) Issue(ctx context.Context, kind domain.TokenKind, email string) (string, error) {
	policy, ok := tokenPolicies[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind: %s", kind)
	}
	if s.Store == nil {
		return "", fmt.Errorf("token store unavailable")
	}

	secret, err := policy.generate()
	if err != nil {
		return "", err
	}
	stored := secret
	if policy.storedDigest {
		stored = digestSecret(secret)
	}

	now := s.now()
	token := domain.OneTimeToken{
		Kind:      kind,
		Email:     email,
		Secret:    stored,
		CreatedAt: now,
		ExpiresAt: now.Add(policy.ttl),
	}
	if err := s.Store.ReplaceToken(ctx, token); err != nil {
		return "", err
	}
	return secret, nil
}

// Redeem returns the live token matching the secret, or ErrNotFound. Wrong
// secret, expired, and already-used are deliberately indistinguishable.
// Reset redemption carries no email; pass it empty.
func (s *TokenService) Redeem(ctx context.Context, kind domain.TokenKind, email, secret string) (domain.OneTimeToken, error) {
	policy, ok := tokenPolicies[kind]
	if !ok {
		return domain.OneTimeToken{}, fmt.Errorf("unknown token kind: %s", kind)
	}
	if secret == "" {
		return domain.OneTimeToken{}, domain.ErrNotFound
	}

	lookup := secret
	if policy.storedDigest {
		lookup = digestSecret(secret)
	}
	return s.Store.GetLiveToken(ctx, kind, email, lookup, s.now())
}

// Consume marks the token used; the write is durable before return.
func (s *TokenService) Consume(ctx context.Context, token domain.OneTimeToken) error {
	return s.Store.MarkTokenUsed(ctx, token.ID)
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func newResetSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read reset secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("read verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func digestSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
