package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"legalchat/internal/auth"
	"legalchat/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth  *service.AuthService
	OAuth *service.OAuthService
	Chat  *service.ChatService

	FrontendURL    string
	GoogleClientID string
	AppleServiceID string
	CookieSecure   bool
	SessionTTL     time.Duration

	// Injectable for tests; default to the auth package verifiers.
	VerifyGoogleIDToken func(context.Context, string, string) (*auth.ExternalTokenClaims, error)
	VerifyAppleIDToken  func(context.Context, string, string) (*auth.ExternalTokenClaims, error)
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VerifyGoogleIDToken == nil {
		opts.VerifyGoogleIDToken = auth.VerifyGoogleIDToken
	}
	if opts.VerifyAppleIDToken == nil {
		opts.VerifyAppleIDToken = auth.VerifyAppleIDToken
	}

	api := &api{
		logger:              logger,
		isProd:              opts.IsProd,
		dbPing:              opts.DBPing,
		authSvc:             opts.Auth,
		oauthSvc:            opts.OAuth,
		chatSvc:             opts.Chat,
		frontendURL:         strings.TrimRight(opts.FrontendURL, "/"),
		googleClientID:      opts.GoogleClientID,
		appleServiceID:      opts.AppleServiceID,
		cookieSecure:        opts.CookieSecure,
		sessionTTL:          opts.SessionTTL,
		verifyGoogleIDToken: opts.VerifyGoogleIDToken,
		verifyAppleIDToken:  opts.VerifyAppleIDToken,
		loginLimiter:        newLoginLimiter(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", api.handleHealthz)

	if api.authSvc == nil {
		mux.HandleFunc("/v1/", handleNotImplemented)
	} else {
		mux.HandleFunc("POST /v1/auth/register", api.handleAuthRegister)
		mux.HandleFunc("POST /v1/auth/verify-email", api.handleAuthVerifyEmail)
		mux.HandleFunc("POST /v1/auth/resend-verification", api.handleAuthResendVerification)
		mux.HandleFunc("POST /v1/auth/login", api.handleAuthLogin)
		mux.HandleFunc("POST /v1/auth/logout", api.requireAuth(api.handleAuthLogout))
		mux.HandleFunc("POST /v1/auth/forgot-password", api.handleAuthForgotPassword)
		mux.HandleFunc("POST /v1/auth/reset-password", api.handleAuthResetPassword)

		mux.HandleFunc("GET /v1/auth/providers", api.handleAuthProviders)
		mux.HandleFunc("GET /v1/auth/google", api.handleAuthGoogleStart)
		mux.HandleFunc("GET /v1/auth/google/callback", api.handleAuthGoogleCallback)
		mux.HandleFunc("POST /v1/auth/google", api.handleAuthLoginGoogle)
		mux.HandleFunc("POST /v1/auth/apple", api.handleAuthLoginApple)
		mux.HandleFunc("POST /v1/auth/unlink", api.requireAuth(api.handleAuthUnlink))

		mux.HandleFunc("GET /v1/users/me", api.requireAuth(api.handleUsersMe))

		if api.chatSvc != nil {
			mux.HandleFunc("POST /v1/chat/conversations", api.requireAuth(api.handleChatConversationCreate))
			mux.HandleFunc("GET /v1/chat/conversations", api.requireAuth(api.handleChatConversationList))
			mux.HandleFunc("GET /v1/chat/conversations/{id}", api.requireAuth(api.handleChatConversationGet))
			mux.HandleFunc("PATCH /v1/chat/conversations/{id}", api.requireAuth(api.handleChatConversationRename))
			mux.HandleFunc("DELETE /v1/chat/conversations/{id}", api.requireAuth(api.handleChatConversationDelete))
			mux.HandleFunc("POST /v1/chat/messages", api.requireAuth(api.handleChatSendMessage))
		}
	}

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			h, pattern := mux.Handler(r)
			if pattern == "" {
				handleV1NotFound(w, r)
				return
			}
			h.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc  *service.AuthService
	oauthSvc *service.OAuthService
	chatSvc  *service.ChatService

	frontendURL    string
	googleClientID string
	appleServiceID string
	cookieSecure   bool
	sessionTTL     time.Duration

	verifyGoogleIDToken func(context.Context, string, string) (*auth.ExternalTokenClaims, error)
	verifyAppleIDToken  func(context.Context, string, string) (*auth.ExternalTokenClaims, error)

	loginLimiter *loginLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
