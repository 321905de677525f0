package api

import (
	"net/http"

	"echvid/internal/accounts"
	"echvid/internal/logging"
)

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user, err := s.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.log(r.Context()).Info("login rejected",
			logging.String("email", req.Email),
			logging.String(logging.FieldEventType, "login_rejected"),
		)
		s.writeServiceError(w, r, err)
		return
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: formatTime(expires),
		User:      FromUser(user),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := s.identity(r)
	if id.Static {
		s.writeJSON(w, http.StatusOK, UserView{Role: string(accounts.RoleAdmin)})
		return
	}
	user, err := s.accounts.Get(r.Context(), id.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromUser(user))
}

func (s *Server) identity(r *http.Request) Identity {
	id, _ := IdentityFromContext(r.Context())
	return id
}

// canAccess reports whether the caller may see resources owned by owner.
func canAccess(id Identity, owner int64) bool {
	return id.IsAdmin() || id.UserID == owner
}
