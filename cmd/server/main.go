package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"legalchat/internal/assistant"
	"legalchat/internal/auth"
	"legalchat/internal/config"
	"legalchat/internal/email"
	"legalchat/internal/httpapi"
	"legalchat/internal/service"
	"legalchat/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)

	var (
		authSvc  *service.AuthService
		oauthSvc *service.OAuthService
		chatSvc  *service.ChatService
		dbPing   func(context.Context) error
	)

	if cfg.DBDSN != "" {
		pgPool, err := postgres.Open(context.Background(), cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		users := postgres.NewUsersStore(pgPool)
		tokens := postgres.NewTokensStore(pgPool)
		conversations := postgres.NewConversationsStore(pgPool)
		messages := postgres.NewMessagesStore(pgPool)

		mailer := &service.MailerService{
			Settings: email.SMTPSettings{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				TLSMode:  cfg.SMTP.TLSMode,
			},
			FromEmail:   cfg.SMTP.FromEmail,
			FromName:    cfg.SMTP.FromName,
			FrontendURL: cfg.FrontendURL,
			Logger:      logger,
		}
		if !cfg.MailEnabled() {
			logger.Warn("smtp not configured, account emails will be dropped")
		}

		authSvc = &service.AuthService{
			Users:  users,
			Tokens: &service.TokenService{Store: tokens},
			Sessions: &auth.TokenIssuer{
				Secret: []byte(cfg.SessionSecret),
				TTL:    cfg.SessionTTL,
			},
			Mailer: mailer,
		}

		oauthSvc = &service.OAuthService{Users: users}
		if cfg.GoogleEnabled() {
			oauthSvc.Google = auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		}

		chatSvc = &service.ChatService{
			Conversations: conversations,
			Messages:      messages,
			Assistant:     assistant.NewClient(cfg.AssistantBaseURL, cfg.AssistantAPIKey),
			Logger:        logger,
		}

		dbPing = pgPool.Ping
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:         logger,
		IsProd:         cfg.IsProd(),
		DBPing:         dbPing,
		Auth:           authSvc,
		OAuth:          oauthSvc,
		Chat:           chatSvc,
		FrontendURL:    cfg.FrontendURL,
		GoogleClientID: cfg.GoogleClientID,
		AppleServiceID: cfg.AppleServiceID,
		CookieSecure:   cfg.CookieSecure(),
		SessionTTL:     cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
