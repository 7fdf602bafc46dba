package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"legalchat/internal/domain"
)

type OAuthUsersStore interface {
	GetUserByProvider(ctx context.Context, provider, providerID string) (domain.UserWithPassword, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	CreateExternalUser(ctx context.Context, email, username, provider, providerID, displayName, avatarURL string) (domain.User, error)
	BindProvider(ctx context.Context, userID, provider, providerID, displayName, avatarURL string) (domain.User, error)
	RefreshExternalProfile(ctx context.Context, userID, displayName, avatarURL string) (domain.User, error)
	UnlinkProvider(ctx context.Context, userID, provider string) error
}

type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (domain.ExternalProfile, error)
}

const defaultUsernameAttempts = 10

// OAuthService turns external provider identities into local accounts,
// applying the merge policy in order: provider-id match, then email match,
// then creation.
type OAuthService struct {
	Users  OAuthUsersStore
	Google CodeExchanger

	// MaxUsernameAttempts bounds the sequential-suffix search before the
	// fallback to a random suffix; zero means the default.
	MaxUsernameAttempts int
}

func (s *OAuthService) GoogleEnabled() bool { return s.Google != nil }

func (s *OAuthService) GoogleAuthURL(state string) (string, error) {
	if s.Google == nil {
		return "", domain.ErrOAuthFailed
	}
	return s.Google.AuthCodeURL(state), nil
}

// LoginWithGoogleCode exchanges the callback code and resolves the local
// account. Exchange and profile-fetch failures surface as ErrOAuthFailed
// and are never retried.
func (s *OAuthService) LoginWithGoogleCode(ctx context.Context, code string) (domain.User, error) {
	if s.Google == nil || strings.TrimSpace(code) == "" {
		return domain.User{}, domain.ErrOAuthFailed
	}

	profile, err := s.Google.Exchange(ctx, code)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrOAuthFailed, err)
	}
	return s.ResolveOrCreate(ctx, profile)
}

// ResolveOrCreate maps an external profile onto a local account:
//  1. provider id already bound: refresh display name/avatar, nothing else
//  2. email matches an existing account: bind the provider to it and trust
//     the provider as an email verifier (implicit account merge)
//  3. otherwise create a password-less account with a derived username
func (s *OAuthService) ResolveOrCreate(ctx context.Context, profile domain.ExternalProfile) (domain.User, error) {
	if profile.Provider == "" || profile.ProviderID == "" {
		return domain.User{}, domain.ErrOAuthFailed
	}

	existing, err := s.Users.GetUserByProvider(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		return s.Users.RefreshExternalProfile(ctx, existing.ID, profile.Name, profile.AvatarURL)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	if profile.Email != "" {
		byEmail, err := s.Users.GetUserByEmail(ctx, profile.Email)
		if err == nil {
			return s.Users.BindProvider(ctx, byEmail.ID, profile.Provider, profile.ProviderID, profile.Name, profile.AvatarURL)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, err
		}
	}

	return s.createExternalUser(ctx, profile)
}

func (s *OAuthService) createExternalUser(ctx context.Context, profile domain.ExternalProfile) (domain.User, error) {
	base := usernameBase(profile)

	maxAttempts := s.MaxUsernameAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultUsernameAttempts
	}

	// Check-then-insert can race; the unique constraint is the last line of
	// defense and a collision just means trying the next suffix.
	for attempt := 0; ; attempt++ {
		var candidate string
		switch {
		case attempt == 0:
			candidate = base
		case attempt <= maxAttempts:
			candidate = base + strconv.Itoa(attempt)
		default:
			candidate = base + randomSuffix()
		}

		u, err := s.Users.CreateExternalUser(ctx, profile.Email, candidate, profile.Provider, profile.ProviderID, profile.Name, profile.AvatarURL)
		if err == nil {
			return u, nil
		}
		if errors.Is(err, domain.ErrUsernameTaken) {
			if attempt > maxAttempts+3 {
				return domain.User{}, err
			}
			continue
		}
		if errors.Is(err, domain.ErrEmailTaken) {
			// Lost a race with a concurrent signup for the same email;
			// fall back to the merge path.
			byEmail, lookupErr := s.Users.GetUserByEmail(ctx, profile.Email)
			if lookupErr != nil {
				return domain.User{}, err
			}
			return s.Users.BindProvider(ctx, byEmail.ID, profile.Provider, profile.ProviderID, profile.Name, profile.AvatarURL)
		}
		return domain.User{}, err
	}
}

// Unlink removes a provider binding unless that would leave the account
// with no way to authenticate.
func (s *OAuthService) Unlink(ctx context.Context, userEmail, provider string) error {
	u, err := s.Users.GetUserByEmail(ctx, userEmail)
	if err != nil {
		return err
	}
	if !u.HasPassword() && u.Provider == provider {
		return domain.ErrPasswordRequired
	}
	return s.Users.UnlinkProvider(ctx, u.ID, provider)
}

// usernameBase derives a username seed from the external display name, or
// the local part of the email, restricted to [A-Za-z0-9_-].
func usernameBase(profile domain.ExternalProfile) string {
	seed := profile.Name
	if seed == "" {
		seed, _, _ = strings.Cut(profile.Email, "@")
	}

	var b strings.Builder
	for _, r := range seed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "0"
	}
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(buf[:])), 10)
}
