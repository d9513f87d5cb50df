package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/crypto"
	"pamana/notes/internal/model"
)

type tokenRequest struct {
	SchoolID string `json:"school_id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.SchoolID = strings.TrimSpace(req.SchoolID)
	if req.SchoolID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.repo.GetUserBySchoolID(r.Context(), req.SchoolID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	access, refresh, err := s.issueTokens(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	s.logger.Info("user signed in", "school_id", user.SchoolID, "role", user.Role)
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh})
}

// handleRefresh rotates the refresh token: the presented one is revoked and
// a new pair is returned.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.repo.GetRefreshSession(r.Context(), crypto.HashToken(req.Refresh))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(s.now()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.repo.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}
	if err := s.repo.RevokeRefreshSession(r.Context(), session.ID, s.now()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	access, refresh, err := s.issueTokens(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh})
}

func (s *Server) issueTokens(ctx context.Context, user User) (string, string, error) {
	access, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:      user.ID,
		SchoolID:    user.SchoolID,
		Role:        string(user.Role),
		Course:      user.Course,
		IsStaff:     user.Staff(),
		IsSuperuser: user.Role == model.RoleAdmin,
	})
	if err != nil {
		return "", "", err
	}

	refresh, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := s.now()
	session := RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refresh),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.repo.CreateRefreshSession(ctx, session); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
