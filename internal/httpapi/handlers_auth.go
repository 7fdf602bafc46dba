package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"legalchat/internal/auth"
	"legalchat/internal/domain"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	fields := map[string]string{}
	req.Email = normalizeEmail(req.Email)
	req.Username = normalizeUsername(req.Username)
	if !validEmail(req.Email) {
		fields["email"] = "must be a valid email"
	}
	if !validUsername(req.Username) {
		fields["username"] = "must be 3-50 chars [A-Za-z0-9_-]"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	u, err := a.authSvc.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Registration successful! Please check your email for verification code.",
		"user":    newUserResponse(u),
	})
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"verification_code"`
}

func (a *api) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	fields := map[string]string{}
	req.Email = normalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if !validEmail(req.Email) {
		fields["email"] = "must be a valid email"
	}
	if len(req.Code) != 6 {
		fields["verification_code"] = "must be 6 digits"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	if err := a.authSvc.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteError(w, http.StatusBadRequest, "invalid_code", "invalid or expired verification code")
			return
		}
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully!"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (a *api) handleAuthResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if !validEmail(req.Email) {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "must be a valid email"}))
		return
	}

	now := time.Now()
	if !a.loginLimiter.Allow("resend:ip:"+clientIP(r), now) || !a.loginLimiter.Allow("resend:email:"+req.Email, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	if err := a.authSvc.ResendVerification(r.Context(), req.Email); err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Verification code sent successfully!"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "required", "password": "required"}))
		return
	}

	now := time.Now()
	if !a.loginLimiter.Allow("login:ip:"+clientIP(r), now) || !a.loginLimiter.Allow("login:email:"+req.Email, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, token, expiresAt, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
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

// handleAuthLogout clears the cookie. Tokens are stateless, so an already
// issued token stays valid until it expires.
func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, a.cookieSecure)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (a *api) handleAuthForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Email = normalizeEmail(req.Email)
	if !validEmail(req.Email) {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"email": "must be a valid email"}))
		return
	}

	now := time.Now()
	if !a.loginLimiter.Allow("forgot:ip:"+clientIP(r), now) || !a.loginLimiter.Allow("forgot:email:"+req.Email, now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	if err := a.authSvc.ForgotPassword(r.Context(), req.Email); err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a password reset link has been sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"new_password"`
}

func (a *api) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	fields := map[string]string{}
	if req.Token == "" {
		fields["token"] = "required"
	}
	if len(req.Password) < 8 {
		fields["new_password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	if err := a.authSvc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteError(w, http.StatusBadRequest, "invalid_token", "invalid or expired reset token")
			return
		}
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}
