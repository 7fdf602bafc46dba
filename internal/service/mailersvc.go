package service

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"legalchat/internal/email"
)

// MailerService sends account emails best-effort: dispatch happens on a
// separate goroutine after the triggering state change has committed, and
// failures are logged and swallowed.
type MailerService struct {
	Settings    email.SMTPSettings
	FromEmail   string
	FromName    string
	FrontendURL string
	Logger      *slog.Logger

	// Send is swapped out by tests; defaults to email.SendSMTP.
	Send func(email.SMTPSettings, email.Message) error
}

func (s *MailerService) SendVerificationCode(toEmail, code string) {
	subject := "Email Verification Code - AI Legal Assistant"
	body := strings.Join([]string{
		"<html><body>",
		"<h2>Email Verification</h2>",
		"<p>Thank you for registering with AI Legal Assistant!</p>",
		"<p>Your verification code is:</p>",
		fmt.Sprintf(`<h1 style="color: #007bff; font-size: 32px; letter-spacing: 5px;">%s</h1>`, code),
		"<p>This code will expire in 15 minutes.</p>",
		"<p>If you didn't request this, please ignore this email.</p>",
		"</body></html>",
	}, "\n")

	s.dispatch(toEmail, subject, body)
}

func (s *MailerService) SendPasswordReset(toEmail, resetToken string) {
	resetLink := strings.TrimRight(s.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(resetToken)

	subject := "Password Reset Request"
	body := strings.Join([]string{
		"<html><body>",
		"<h2>Password Reset Request</h2>",
		"<p>You have requested to reset your password. Click the link below to reset it:</p>",
		fmt.Sprintf(`<p><a href="%s">Reset Password</a></p>`, resetLink),
		"<p>This link will expire in 1 hour.</p>",
		"<p>If you didn't request this, please ignore this email.</p>",
		"</body></html>",
	}, "\n")

	s.dispatch(toEmail, subject, body)
}

func (s *MailerService) dispatch(toEmail, subject, body string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if s.Settings.Host == "" {
		logger.Warn("mail not configured, dropping email", "to", toEmail, "subject", subject)
		return
	}

	send := s.Send
	if send == nil {
		send = email.SendSMTP
	}

	msg := email.Message{
		FromName:  s.FromName,
		FromEmail: s.FromEmail,
		ToEmail:   toEmail,
		Subject:   subject,
		HTMLBody:  body,
	}

	go func() {
		if err := send(s.Settings, msg); err != nil {
			logger.Error("send email failed", "to", toEmail, "subject", subject, "err", err)
		}
	}()
}
