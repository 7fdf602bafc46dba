package domain

import "time"

type User struct {
	ID            string
	Email         string
	Username      string
	Active        bool
	EmailVerified bool
	Provider      string
	ProviderID    string
	DisplayName   string
	AvatarURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type UserWithPassword struct {
	User
	PasswordHash string
}

// HasPassword reports whether the account can authenticate with a password.
func (u UserWithPassword) HasPassword() bool { return u.PasswordHash != "" }

type TokenKind string

const (
	TokenKindReset        TokenKind = "reset"
	TokenKindVerification TokenKind = "verification"
)

// OneTimeToken is a single-use secret bound to an email and a purpose.
// For reset tokens Secret holds a sha256-hex digest of the delivered value;
// for verification tokens it holds the 6-digit code itself.
type OneTimeToken struct {
	ID        string
	Kind      TokenKind
	Email     string
	Secret    string
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExternalProfile is the normalized identity returned by a federated
// provider after code exchange or id-token verification.
type ExternalProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

type Conversation struct {
	ID     string
	UserID string
	Name   string
	// RemoteID is the upstream assistant conversation id, assigned lazily
	// when the first message is sent.
	RemoteID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             string
	ConversationID string
	RemoteID       string
	Query          string
	Answer         string
	CreatedAt      time.Time
}
