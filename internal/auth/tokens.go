package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer mints and resolves stateless HS256 session tokens. The token
// carries the account email as subject plus an absolute expiry; no server
// side state exists, so a token stays valid until it expires.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

const sessionIssuer = "legalchat"

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a session token for email, expiring TTL from now.
func (i *TokenIssuer) Issue(email string) (string, time.Time, error) {
	if len(i.Secret) == 0 {
		return "", time.Time{}, errors.New("session secret not configured")
	}
	now := i.clock()()
	expiresAt := now.Add(i.TTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Resolve verifies signature, algorithm and expiry, returning the embedded
// email. Every failure collapses to ErrInvalidToken.
func (i *TokenIssuer) Resolve(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || len(i.Secret) == 0 {
		return "", ErrInvalidToken
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return i.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock()),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) clock() func() time.Time {
	if i.Now != nil {
		return i.Now
	}
	return time.Now
}
