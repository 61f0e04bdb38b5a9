package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"billtracker/internal/auth"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/session"
)

type sessionContextKey struct{}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return s
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string     `json:"token,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

func newSessionResponse(token string, claims *auth.Claims, user *core.User) sessionResponse {
	resp := sessionResponse{Token: token, User: user}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	return resp
}

// authed resolves the bearer token to a user and that user's live session.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, "authenticate", auth.ErrMissingToken)
			return
		}
		claims, err := s.deps.JWT.Validate(token)
		if err != nil {
			writeError(w, r, "authenticate", err)
			return
		}
		user, err := s.deps.Users.GetUserByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				err = auth.ErrInvalidToken
			}
			writeError(w, r, "authenticate", err)
			return
		}

		sess, err := s.deps.Sessions.Get(user)
		if err != nil {
			writeError(w, r, "open session", err)
			return
		}

		logger := log.FromContext(ctx).With(log.FieldUserID, user.ID)
		ctx = log.NewContext(ctx, logger)
		ctx = auth.WithClaims(ctx, claims)
		ctx = withSession(ctx, sess)
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	user, err := s.deps.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "register", err)
		return
	}
	token, claims, err := s.deps.JWT.Generate(user)
	if err != nil {
		writeError(w, r, "issue token", err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered", log.FieldUserID, user.ID)
	respondJSON(w, http.StatusCreated, newSessionResponse(token, claims, user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	user, err := s.deps.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, "login", err)
		return
	}
	token, claims, err := s.deps.JWT.Generate(user)
	if err != nil {
		writeError(w, r, "issue token", err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(token, claims, user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())
	s.deps.JWT.Revoke(claims)
	s.deps.Sessions.Drop(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newSessionResponse("", auth.ClaimsFrom(r.Context()), sessionFrom(r.Context()).User))
}
