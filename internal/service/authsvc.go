package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"legalchat/internal/auth"
	"legalchat/internal/domain"
)

type UsersStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	SetEmailVerified(ctx context.Context, email string) error
	SetPasswordHash(ctx context.Context, email, passwordHash string) error
}

type TokenLedger interface {
	Issue(ctx context.Context, kind domain.TokenKind, email string) (string, error)
	Redeem(ctx context.Context, kind domain.TokenKind, email, secret string) (domain.OneTimeToken, error)
	Consume(ctx context.Context, token domain.OneTimeToken) error
}

type SessionIssuer interface {
	Issue(email string) (string, time.Time, error)
	Resolve(token string) (string, error)
}

type Mailer interface {
	SendVerificationCode(toEmail, code string)
	SendPasswordReset(toEmail, resetToken string)
}

// AuthService composes the credential store, token ledger, session issuer
// and mailer into the account flows the HTTP handlers consume.
type AuthService struct {
	Users    UsersStore
	Tokens   TokenLedger
	Sessions SessionIssuer
	Mailer   Mailer
	Now      func() time.Time
}

// Register creates an unverified password account and emails a verification
// code. The email is sent only after the user row and token are committed.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (domain.User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	u, err := s.Users.CreateUser(ctx, email, username, passwordHash)
	if err != nil {
		return domain.User{}, err
	}

	code, err := s.Tokens.Issue(ctx, domain.TokenKindVerification, email)
	if err != nil {
		return domain.User{}, err
	}
	if s.Mailer != nil {
		s.Mailer.SendVerificationCode(email, code)
	}

	return u, nil
}

// VerifyEmail redeems a 6-digit code and flips the verified flag. Wrong,
// expired and reused codes are all ErrNotFound.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	token, err := s.Tokens.Redeem(ctx, domain.TokenKindVerification, email, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if err := s.Users.SetEmailVerified(ctx, email); err != nil {
		return err
	}
	return s.Tokens.Consume(ctx, token)
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return domain.NewValidationError(map[string]string{"email": "already verified"})
	}

	code, err := s.Tokens.Issue(ctx, domain.TokenKindVerification, email)
	if err != nil {
		return err
	}
	if s.Mailer != nil {
		s.Mailer.SendVerificationCode(email, code)
	}
	return nil
}

// Login checks the password and mints a session token. Missing account,
// wrong password and password-less (OAuth-only) accounts all collapse to
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.User, string, time.Time, error) {
	email = normalizeEmail(email)

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", time.Time{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, "", time.Time{}, err
	}
	if !u.HasPassword() {
		return domain.User{}, "", time.Time{}, domain.ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil || !ok {
		return domain.User{}, "", time.Time{}, domain.ErrInvalidCredentials
	}
	if !u.Active {
		return domain.User{}, "", time.Time{}, domain.ErrUserDisabled
	}
	if !u.EmailVerified {
		return domain.User{}, "", time.Time{}, domain.ErrEmailNotVerified
	}

	token, expiresAt, err := s.Sessions.Issue(u.Email)
	if err != nil {
		return domain.User{}, "", time.Time{}, err
	}
	return u.User, token, expiresAt, nil
}

// IssueSession mints a session token for an already-authenticated user
// (federated login paths).
func (s *AuthService) IssueSession(u domain.User) (string, time.Time, error) {
	return s.Sessions.Issue(u.Email)
}

// ForgotPassword issues a reset token and emails it. The outcome is
// identical whether or not the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	_, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := s.Tokens.Issue(ctx, domain.TokenKindReset, email)
	if err != nil {
		return err
	}
	if s.Mailer != nil {
		s.Mailer.SendPasswordReset(email, token)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	token, err := s.Tokens.Redeem(ctx, domain.TokenKindReset, "", strings.TrimSpace(rawToken))
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Users.SetPasswordHash(ctx, token.Email, hash); err != nil {
		return err
	}
	return s.Tokens.Consume(ctx, token)
}

// UserForToken resolves a session token back to its account. Bad signature,
// expiry and a vanished account are all ErrUnauthorized.
func (s *AuthService) UserForToken(ctx context.Context, token string) (domain.User, error) {
	email, err := s.Sessions.Resolve(token)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}

	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	if !u.Active {
		return domain.User{}, domain.ErrUserDisabled
	}
	return u.User, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
