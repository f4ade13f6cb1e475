package httpserver

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatwave-backend/internal/storage"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{4,20}$`)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type authResponse struct {
	User      userItem `json:"user"`
	SessionID string   `json:"sessionId"`
	ExpiresAt int64    `json:"expiresAt"`
}

type logoutResponse struct {
	Success bool `json:"success"`
}

type verifySessionResponse struct {
	UserID string `json:"userId"`
}

func (api *v1API) handleAuth(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auth/")
	switch rest {
	case "register":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleRegister(w, r)
	case "login":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleLogin(w, r)
	case "logout":
		if r.Method != http.MethodPost {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleLogout(w, r)
	case "verify":
		if r.Method != http.MethodGet {
			writeAPIError(w, ErrCodeMethodNotAllowed, "method not allowed")
			return
		}
		api.handleVerifySession(w, r)
	default:
		writeAPIError(w, ErrCodeNotFound, "not found")
	}
}

func (api *v1API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !api.admit(w, r, storage.RateLimitAnonymous, storage.ActionRegister) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if !usernameRegex.MatchString(req.Username) {
		writeAPIError(w, ErrCodeValidation, "username must be 4-20 characters, alphanumeric and underscore only")
		return
	}
	if len(req.Password) < 8 {
		writeAPIError(w, ErrCodeValidation, "password must be at least 8 characters")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		api.logger.Error("bcrypt hash failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	nowMs := time.Now().UnixMilli()
	user, err := api.store.CreateUser(r.Context(), req.Username, req.Email, string(passwordHash), nowMs)
	if err != nil {
		if errors.Is(err, storage.ErrUsernameExists) {
			writeAPIError(w, ErrCodeUsernameExists, "username already exists")
			return
		}
		api.logger.Error("create user failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	session, err := api.store.IssueSession(r.Context(), user.ID, nowMs)
	if err != nil {
		api.logger.Error("issue session failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:      userItem{ID: user.ID, Username: user.Username, Email: user.Email},
		SessionID: session.Token,
		ExpiresAt: session.ExpiresAtMs,
	})
}

func (api *v1API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !api.admit(w, r, storage.RateLimitAnonymous, storage.ActionLogin) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, ErrCodeValidation, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeAPIError(w, ErrCodeValidation, "username and password are required")
		return
	}

	user, err := api.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeAPIError(w, ErrCodeInvalidCredentials, "invalid username or password")
			return
		}
		api.logger.Error("get user failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeAPIError(w, ErrCodeInvalidCredentials, "invalid username or password")
		return
	}

	// Single-session policy: issuing deletes any session the user held.
	nowMs := time.Now().UnixMilli()
	session, err := api.store.IssueSession(r.Context(), user.ID, nowMs)
	if err != nil {
		api.logger.Error("issue session failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:      userItem{ID: user.ID, Username: user.Username, Email: user.Email},
		SessionID: session.Token,
		ExpiresAt: session.ExpiresAtMs,
	})
}

func (api *v1API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := getSessionTokenFromContext(r.Context())
	if token == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	if err := api.store.RevokeSession(r.Context(), token); err != nil {
		api.logger.Error("revoke session failed", "error", err)
		writeAPIError(w, ErrCodeInternal, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{Success: true})
}

func (api *v1API) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		writeAPIError(w, ErrCodeInvalidSession, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, verifySessionResponse{UserID: userID})
}
