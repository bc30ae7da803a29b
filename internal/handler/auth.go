package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/identity"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/service"
)

// AuthHandler exposes the identity provider.
type AuthHandler struct {
	p        *identity.Provider
	validate *service.Validator
	log      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(p *identity.Provider, log *zap.Logger) *AuthHandler {
	return &AuthHandler{p: p, validate: service.NewValidator(), log: log}
}

type sessionResponse struct {
	*identity.Session
	Admin bool `json:"admin"`
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, s *identity.Session) {
	writeJSON(w, status, sessionResponse{Session: s, Admin: h.p.IsAdmin(s.Identity)})
}

// Anonymous handles POST /auth/anonymous
func (h *AuthHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	s, err := h.p.SignInAnonymous(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// Token handles POST /auth/token
// An unusable token yields a fresh anonymous session rather than an error.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req model.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s, err := h.p.SignInWithToken(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	s, err := h.p.SignInWithCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusOK, s)
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	s, err := h.p.RegisterCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeSession(w, http.StatusCreated, s)
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r.Context())
	if token == "" {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	if err := h.p.SignOut(r.Context(), token); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	who, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.Identity
		Admin bool `json:"admin"`
	}{who, h.p.IsAdmin(who)})
}

func (h *AuthHandler) credentials(w http.ResponseWriter, r *http.Request) (model.CredentialsRequest, bool) {
	var req model.CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	req.Email = model.NormalizeEmail(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeServiceError(w, h.log, err)
		return req, false
	}
	return req, true
}
