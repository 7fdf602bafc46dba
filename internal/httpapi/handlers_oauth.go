package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"legalchat/internal/auth"
	"legalchat/internal/domain"
)

const oauthStateCookie = "legalchat_oauth_state"

func (a *api) handleAuthProviders(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]bool{
		"google": a.oauthSvc != nil && a.oauthSvc.GoogleEnabled(),
		"apple":  a.appleServiceID != "",
	})
}

// handleAuthGoogleStart redirects the browser to Google's consent screen.
// The anti-forgery state rides along in a short-lived cookie.
func (a *api) handleAuthGoogleStart(w http.ResponseWriter, r *http.Request) {
	if a.oauthSvc == nil || !a.oauthSvc.GoogleEnabled() {
		WriteError(w, http.StatusServiceUnavailable, "oauth_unavailable", "google login not configured")
		return
	}

	state := newOAuthState()
	authURL, err := a.oauthSvc.GoogleAuthURL(state)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/v1/auth/google",
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleAuthGoogleCallback finishes the web flow. Every outcome is a
// redirect back to the frontend; errors carry an error code, success
// carries the session token.
func (a *api) handleAuthGoogleCallback(w http.ResponseWriter, r *http.Request) {
	clearState := func() {
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    "",
			Path:     "/v1/auth/google",
			HttpOnly: true,
			Secure:   a.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}

	q := r.URL.Query()
	if q.Get("error") != "" {
		clearState()
		http.Redirect(w, r, a.frontendURL+"/login?error=oauth_cancelled", http.StatusFound)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if code == "" || state == "" || err != nil || stateCookie.Value != state {
		clearState()
		http.Redirect(w, r, a.frontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}
	clearState()

	if a.oauthSvc == nil {
		http.Redirect(w, r, a.frontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}

	u, err := a.oauthSvc.LoginWithGoogleCode(r.Context(), code)
	if err != nil {
		a.logger.Warn("google login failed", "err", err)
		http.Redirect(w, r, a.frontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}

	token, _, err := a.authSvc.IssueSession(u)
	if err != nil {
		a.logger.Error("issue session failed", "err", err)
		http.Redirect(w, r, a.frontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}

	auth.SetSessionCookie(w, token, a.sessionTTL, a.cookieSecure)
	http.Redirect(w, r, a.frontendURL+"/auth/callback?token="+url.QueryEscape(token)+"&type=google_success", http.StatusFound)
}

type idTokenRequest struct {
	IDToken string `json:"id_token"`
}

// handleAuthLoginGoogle is the mobile path: the app obtains an id token
// itself and the server only verifies it.
func (a *api) handleAuthLoginGoogle(w http.ResponseWriter, r *http.Request) {
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if req.IDToken == "" || a.googleClientID == "" {
		WriteDomainError(w, domain.ErrOAuthFailed)
		return
	}

	claims, err := a.verifyGoogleIDToken(r.Context(), req.IDToken, a.googleClientID)
	if err != nil {
		WriteDomainError(w, domain.ErrInvalidCredentials)
		return
	}

	a.finishFederatedLogin(w, r, domain.ExternalProfile{
		Provider:   "google",
		ProviderID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		AvatarURL:  claims.Picture,
	})
}

func (a *api) handleAuthLoginApple(w http.ResponseWriter, r *http.Request) {
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	if req.IDToken == "" || a.appleServiceID == "" {
		WriteDomainError(w, domain.ErrOAuthFailed)
		return
	}

	claims, err := a.verifyAppleIDToken(r.Context(), req.IDToken, a.appleServiceID)
	if err != nil {
		WriteDomainError(w, domain.ErrInvalidCredentials)
		return
	}

	a.finishFederatedLogin(w, r, domain.ExternalProfile{
		Provider:   "apple",
		ProviderID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
	})
}

func (a *api) finishFederatedLogin(w http.ResponseWriter, r *http.Request, profile domain.ExternalProfile) {
	if a.oauthSvc == nil {
		WriteError(w, http.StatusServiceUnavailable, "oauth_unavailable", "federated login not configured")
		return
	}

	u, err := a.oauthSvc.ResolveOrCreate(r.Context(), profile)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	token, expiresAt, err := a.authSvc.IssueSession(u)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	auth.SetSessionCookie(w, token, a.sessionTTL, a.cookieSecure)
	WriteJSON(w, http.StatusOK, sessionResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        newUserResponse(u),
	})
}

type unlinkRequest struct {
	Provider string `json:"provider"`
}

func (a *api) handleAuthUnlink(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req unlinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	switch req.Provider {
	case "google", "apple":
	default:
		WriteDomainError(w, domain.NewValidationError(map[string]string{"provider": "must be google or apple"}))
		return
	}

	if a.oauthSvc == nil {
		WriteError(w, http.StatusServiceUnavailable, "oauth_unavailable", "federated login not configured")
		return
	}

	if err := a.oauthSvc.Unlink(r.Context(), u.Email, req.Provider); err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Provider unlinked successfully"})
}

func newOAuthState() string {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().UTC().String()))
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
