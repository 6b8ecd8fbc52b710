// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-elect/auth"
	"github.com/danielhkuo/quickly-elect/cliparse"
	"github.com/danielhkuo/quickly-elect/db"
	"github.com/danielhkuo/quickly-elect/middleware"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/google/uuid"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidEmail = errors.New("invalid email")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	ErrInvalidRole  = errors.New("invalid role")
)

// Principal is the caller of an authenticated request.
// A zero UserID means the caller is anonymous (application id only).
type Principal struct {
	UserID    string
	Role      string
	Master    bool
	SessionID string
}

// IsAdmin reports whether the caller may write protected collections.
func (p Principal) IsAdmin() bool {
	return p.Master || p.Role == models.RoleAdmin
}

type principalKey struct{}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type SessionHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	now func() time.Time
}

func NewSessionHandler(db *sql.DB, cfg cliparse.Config) *SessionHandler {
	return &SessionHandler{db: db, cfg: cfg, now: time.Now}
}

// Authenticate resolves the caller and stores a Principal in the request context.
//
// A bearer token must name a live session. Without one the request must carry
// the application id. A master key, when sent, must be correct.
func (h *SessionHandler) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Principal

		if key := r.Header.Get("X-Master-Key"); key != "" {
			if err := auth.ValidateMasterKey(key, h.cfg.MasterKey); err != nil {
				middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid master key")
				return
			}
			p.Master = true
		}

		if token, ok := middleware.BearerToken(r); ok {
			sessionID, userID, role, err := h.lookupSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidSession) {
					slog.Error("failed to look up session", "error", err)
					middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
					return
				}
				middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid session token")
				return
			}
			p.SessionID, p.UserID, p.Role = sessionID, userID, role
		} else if !p.Master && r.Header.Get("X-Application-Id") != h.cfg.ApplicationID {
			middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid application id")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

func (h *SessionHandler) lookupSession(ctx context.Context, token string) (sessionID, userID, role string, err error) {
	now := h.now()
	claims, err := auth.ParseSessionToken(h.cfg.SessionSecret, token, now)
	if err != nil {
		return "", "", "", err
	}

	var expiresAt int64
	err = h.db.QueryRowContext(ctx, `
		SELECT s.expires_at, u.role
		FROM session s JOIN app_user u ON u.id = s.user_id
		WHERE s.id = $1 AND s.user_id = $2
	`, claims.SessionID, claims.UserID).Scan(&expiresAt, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", "", auth.ErrInvalidSession
	}
	if err != nil {
		return "", "", "", err
	}
	if !now.Before(db.FromMillis(expiresAt)) {
		return "", "", "", auth.ErrInvalidSession
	}
	return claims.SessionID, claims.UserID, role, nil
}

// SignUp handles POST /signup
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	user, err := CreateUser(r.Context(), h.db, req.Email, req.Password, req.Name, models.RoleVoter)
	switch {
	case errors.Is(err, ErrEmailTaken):
		middleware.ErrorResponse(w, http.StatusConflict, "Email already registered")
		return
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("failed to create user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	token, err := h.startSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to start session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	slog.Info("user signed up", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusCreated, models.SessionResponse{Token: token, User: user})
}

// SignIn handles POST /login
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var (
		user         models.User
		passwordHash string
		createdAt    int64
	)
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, name, role, password_hash, created_at FROM app_user WHERE email = $1
	`, normalizeEmail(req.Email)).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &passwordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("failed to query user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := auth.CheckPassword(passwordHash, req.Password); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid email or password")
		return
	}
	user.CreatedAt = db.FromMillis(createdAt)

	token, err := h.startSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to start session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	slog.Info("user signed in", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{Token: token, User: user})
}

// SignOut handles POST /logout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if p.SessionID == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid session token")
		return
	}

	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM session WHERE id = $1`, p.SessionID); err != nil {
		slog.Error("failed to delete session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	slog.Info("user signed out", "user_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if p.UserID == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var (
		user      models.User
		createdAt int64
	)
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, name, role, created_at FROM app_user WHERE id = $1
	`, p.UserID).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid session token")
		return
	}
	if err != nil {
		slog.Error("failed to query user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	user.CreatedAt = db.FromMillis(createdAt)

	middleware.JSONResponse(w, http.StatusOK, user)
}

func (h *SessionHandler) startSession(ctx context.Context, userID string) (string, error) {
	now := h.now()
	sessionID := uuid.NewString()

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sessionID, userID, db.ToMillis(now), db.ToMillis(now.Add(auth.SessionLifetime)))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	return auth.IssueSessionToken(h.cfg.SessionSecret, sessionID, userID, now)
}

// CreateUser validates and inserts an account. Used by sign-up and by
// startup seeding of the admin account.
func CreateUser(ctx context.Context, conn *sql.DB, email, password, name, role string) (models.User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return models.User{}, ErrInvalidEmail
	}
	if len(password) < auth.MinPasswordLength {
		return models.User{}, ErrWeakPassword
	}
	if role != models.RoleVoter && role != models.RoleAdmin {
		return models.User{}, ErrInvalidRole
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      role,
		CreatedAt: db.FromMillis(db.ToMillis(time.Now())),
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO app_user (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`, user.ID, user.Email, user.Name, hash, user.Role, db.ToMillis(user.CreatedAt))
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.User{}, ErrEmailTaken
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
