package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"legalchat/internal/auth"
	"legalchat/internal/domain"
	"legalchat/internal/service"
)

type stubOAuthUsersStore struct {
	t *testing.T

	getUserByProviderFunc      func(context.Context, string, string) (domain.UserWithPassword, error)
	getUserByEmailFunc         func(context.Context, string) (domain.UserWithPassword, error)
	createExternalUserFunc     func(context.Context, string, string, string, string, string, string) (domain.User, error)
	bindProviderFunc           func(context.Context, string, string, string, string, string) (domain.User, error)
	refreshExternalProfileFunc func(context.Context, string, string, string) (domain.User, error)
	unlinkProviderFunc         func(context.Context, string, string) error
}

func (s *stubOAuthUsersStore) GetUserByProvider(ctx context.Context, provider, providerID string) (domain.UserWithPassword, error) {
	if s.getUserByProviderFunc != nil {
		return s.getUserByProviderFunc(ctx, provider, providerID)
	}
	s.t.Fatalf("GetUserByProvider called unexpectedly")
	return domain.UserWithPassword{}, context.Canceled
}

func (s *stubOAuthUsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	if s.getUserByEmailFunc != nil {
		return s.getUserByEmailFunc(ctx, email)
	}
	s.t.Fatalf("GetUserByEmail called unexpectedly")
	return domain.UserWithPassword{}, context.Canceled
}

func (s *stubOAuthUsersStore) CreateExternalUser(ctx context.Context, email, username, provider, providerID, displayName, avatarURL string) (domain.User, error) {
	if s.createExternalUserFunc != nil {
		return s.createExternalUserFunc(ctx, email, username, provider, providerID, displayName, avatarURL)
	}
	s.t.Fatalf("CreateExternalUser called unexpectedly")
	return domain.User{}, context.Canceled
}

func (s *stubOAuthUsersStore) BindProvider(ctx context.Context, userID, provider, providerID, displayName, avatarURL string) (domain.User, error) {
	if s.bindProviderFunc != nil {
		return s.bindProviderFunc(ctx, userID, provider, providerID, displayName, avatarURL)
	}
	s.t.Fatalf("BindProvider called unexpectedly")
	return domain.User{}, context.Canceled
}

func (s *stubOAuthUsersStore) RefreshExternalProfile(ctx context.Context, userID, displayName, avatarURL string) (domain.User, error) {
	if s.refreshExternalProfileFunc != nil {
		return s.refreshExternalProfileFunc(ctx, userID, displayName, avatarURL)
	}
	s.t.Fatalf("RefreshExternalProfile called unexpectedly")
	return domain.User{}, context.Canceled
}

func (s *stubOAuthUsersStore) UnlinkProvider(ctx context.Context, userID, provider string) error {
	if s.unlinkProviderFunc != nil {
		return s.unlinkProviderFunc(ctx, userID, provider)
	}
	s.t.Fatalf("UnlinkProvider called unexpectedly")
	return context.Canceled
}

type stubExchanger struct {
	t *testing.T

	authCodeURLFunc func(string) string
	exchangeFunc    func(context.Context, string) (domain.ExternalProfile, error)
}

func (s *stubExchanger) AuthCodeURL(state string) string {
	if s.authCodeURLFunc != nil {
		return s.authCodeURLFunc(state)
	}
	s.t.Fatalf("AuthCodeURL called unexpectedly")
	return ""
}

func (s *stubExchanger) Exchange(ctx context.Context, code string) (domain.ExternalProfile, error) {
	if s.exchangeFunc != nil {
		return s.exchangeFunc(ctx, code)
	}
	s.t.Fatalf("Exchange called unexpectedly")
	return domain.ExternalProfile{}, context.Canceled
}

func newOAuthAPI(users *stubOAuthUsersStore, google *stubExchanger) *api {
	var exchanger service.CodeExchanger
	if google != nil {
		exchanger = google
	}
	return &api{
		authSvc: &service.AuthService{
			Sessions: testIssuer(),
		},
		oauthSvc:     &service.OAuthService{Users: users, Google: exchanger},
		frontendURL:  "http://frontend.test",
		sessionTTL:   30 * time.Minute,
		loginLimiter: newLoginLimiter(),
	}
}

func TestAuthProviders(t *testing.T) {
	a := newOAuthAPI(&stubOAuthUsersStore{t: t}, &stubExchanger{t: t})
	a.appleServiceID = "apple-service"

	rr := httptest.NewRecorder()
	a.handleAuthProviders(rr, httptest.NewRequest(http.MethodGet, "/v1/auth/providers", nil))

	var resp map[string]bool
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["google"] || !resp["apple"] {
		t.Fatalf("unexpected providers: %v", resp)
	}
}

func TestAuthGoogleStartRedirectsWithState(t *testing.T) {
	google := &stubExchanger{
		t: t,
		authCodeURLFunc: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
		},
	}
	a := newOAuthAPI(&stubOAuthUsersStore{t: t}, google)

	rr := httptest.NewRecorder()
	a.handleAuthGoogleStart(rr, httptest.NewRequest(http.MethodGet, "/v1/auth/google", nil))

	if rr.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	location := rr.Header().Get("Location")
	if !strings.HasPrefix(location, "https://accounts.google.com/") {
		t.Fatalf("unexpected redirect: %s", location)
	}

	var stateCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value == "" || !stateCookie.HttpOnly {
		t.Fatalf("missing state cookie")
	}
	if !strings.Contains(location, url.QueryEscape(stateCookie.Value)) {
		t.Fatalf("redirect does not carry the cookie state")
	}
}

func TestAuthGoogleCallbackCancelled(t *testing.T) {
	a := newOAuthAPI(&stubOAuthUsersStore{t: t}, &stubExchanger{t: t})

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/google/callback?error=access_denied", nil)
	rr := httptest.NewRecorder()
	a.handleAuthGoogleCallback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "http://frontend.test/login?error=oauth_cancelled" {
		t.Fatalf("unexpected redirect: %s", got)
	}
}

func TestAuthGoogleCallbackStateMismatch(t *testing.T) {
	a := newOAuthAPI(&stubOAuthUsersStore{t: t}, &stubExchanger{t: t})

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/google/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "real-state"})
	rr := httptest.NewRecorder()
	a.handleAuthGoogleCallback(rr, req)

	if got := rr.Header().Get("Location"); got != "http://frontend.test/login?error=oauth_failed" {
		t.Fatalf("unexpected redirect: %s", got)
	}
}

func TestAuthGoogleCallbackSuccess(t *testing.T) {
	users := &stubOAuthUsersStore{
		t: t,
		getUserByProviderFunc: func(_ context.Context, provider, providerID string) (domain.UserWithPassword, error) {
			if provider != "google" || providerID != "sub-123" {
				t.Fatalf("unexpected provider lookup: %s %s", provider, providerID)
			}
			return domain.UserWithPassword{User: domain.User{ID: "user-1", Email: "alice@example.com"}}, nil
		},
		refreshExternalProfileFunc: func(_ context.Context, userID, displayName, avatarURL string) (domain.User, error) {
			return domain.User{ID: userID, Email: "alice@example.com", DisplayName: displayName}, nil
		},
	}
	google := &stubExchanger{
		t: t,
		exchangeFunc: func(_ context.Context, code string) (domain.ExternalProfile, error) {
			if code != "good-code" {
				t.Fatalf("unexpected code: %s", code)
			}
			return domain.ExternalProfile{Provider: "google", ProviderID: "sub-123", Email: "alice@example.com", Name: "Alice"}, nil
		},
	}
	a := newOAuthAPI(users, google)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/google/callback?code=good-code&state=real-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "real-state"})
	rr := httptest.NewRecorder()
	a.handleAuthGoogleCallback(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	location := rr.Header().Get("Location")
	if !strings.HasPrefix(location, "http://frontend.test/auth/callback?token=") ||
		!strings.HasSuffix(location, "&type=google_success") {
		t.Fatalf("unexpected redirect: %s", location)
	}

	var sessionCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatalf("missing session cookie")
	}
}

func TestAuthLoginGoogleIDToken(t *testing.T) {
	users := &stubOAuthUsersStore{
		t: t,
		getUserByProviderFunc: func(_ context.Context, _, _ string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{User: domain.User{ID: "user-1", Email: "alice@example.com"}}, nil
		},
		refreshExternalProfileFunc: func(_ context.Context, userID, _, _ string) (domain.User, error) {
			return domain.User{ID: userID, Email: "alice@example.com"}, nil
		},
	}
	a := newOAuthAPI(users, nil)
	a.googleClientID = "google-client"
	a.verifyGoogleIDToken = func(_ context.Context, token, aud string) (*auth.ExternalTokenClaims, error) {
		if token != "token-123" || aud != "google-client" {
			t.Fatalf("unexpected token/aud: %s %s", token, aud)
		}
		return &auth.ExternalTokenClaims{Subject: "sub-123", Email: "alice@example.com"}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/google",
		strings.NewReader(`{"id_token":"token-123"}`))
	rr := httptest.NewRecorder()
	a.handleAuthLoginGoogle(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.User.ID != "user-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAuthLoginAppleInvalidToken(t *testing.T) {
	a := newOAuthAPI(&stubOAuthUsersStore{t: t}, nil)
	a.appleServiceID = "apple-service"
	a.verifyAppleIDToken = func(_ context.Context, _, _ string) (*auth.ExternalTokenClaims, error) {
		return nil, context.Canceled
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/apple",
		strings.NewReader(`{"id_token":"bad"}`))
	rr := httptest.NewRecorder()
	a.handleAuthLoginApple(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestAuthUnlinkLastLoginMethod(t *testing.T) {
	users := &stubOAuthUsersStore{
		t: t,
		getUserByEmailFunc: func(_ context.Context, email string) (domain.UserWithPassword, error) {
			return domain.UserWithPassword{User: domain.User{ID: "user-1", Email: email, Provider: "google"}}, nil
		},
	}
	a := newOAuthAPI(users, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/unlink",
		strings.NewReader(`{"provider":"google"}`))
	req = req.WithContext(context.WithValue(req.Context(), authUserKey, domain.User{ID: "user-1", Email: "alice@example.com"}))
	rr := httptest.NewRecorder()
	a.handleAuthUnlink(rr, req)

	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
}
