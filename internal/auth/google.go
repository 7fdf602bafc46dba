package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"legalchat/internal/domain"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleOAuth runs the web authorization-code flow: code exchange at
// Google's token endpoint, then a profile fetch from the userinfo endpoint.
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL builds the authorization redirect URL for the given
// anti-forgery state.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades an authorization code for the external profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (domain.ExternalProfile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("google token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("fetch google profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return domain.ExternalProfile{}, fmt.Errorf("fetch google profile: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("decode google profile: %w", err)
	}
	if info.ID == "" {
		return domain.ExternalProfile{}, fmt.Errorf("google profile missing id")
	}

	return domain.ExternalProfile{
		Provider:   "google",
		ProviderID: info.ID,
		Email:      strings.TrimSpace(strings.ToLower(info.Email)),
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}
