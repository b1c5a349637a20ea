package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/feedgate/feedgate/internal/auth"
	"github.com/feedgate/feedgate/internal/domain"
	"github.com/feedgate/feedgate/internal/service"
)

// UserHandler serves registration, login, profile, credits, and feed
// interaction endpoints.
type UserHandler struct {
	Users *service.Users
}

// RegisterRoutes registers the account routes on the given mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/users/profile", h.Profile)
	mux.HandleFunc("PUT /api/users/profile", h.UpdateProfile)
	mux.HandleFunc("POST /api/users/track-login", h.TrackLogin)
	mux.HandleFunc("POST /api/users/credits", h.AddCredits)
	mux.HandleFunc("GET /api/users/activity", h.ListActivity)
	mux.HandleFunc("POST /api/interactions", h.SaveInteraction)
	mux.HandleFunc("GET /api/interactions", h.ListInteractions)
}

// Register handles POST /api/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "email and password are required")
		return
	}

	u, err := h.Users.Register(r.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, service.ErrEmailTaken) {
		writeError(w, http.StatusConflict, StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{
		Status:  StatusOK,
		Message: "user registered successfully",
		Data:    u,
	})
}

// Login handles POST /api/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.Users.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, StatusNotFound, "user not found")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, StatusForbidden, "invalid credentials")
		return
	case errors.Is(err, service.ErrAccountArchived):
		writeError(w, http.StatusForbidden, StatusForbidden, "account is archived")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, StatusServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		Status:  StatusOK,
		Message: "login successful",
		Data: map[string]any{
			"user":          res.User,
			"token":         res.Token,
			"creditsAdded":  res.CreditsAdded,
			"creditReasons": res.CreditReasons,
		},
	})
}

// Profile handles GET /api/users/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	u, err := h.Users.Profile(r.Context(), id.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Status: StatusOK, Data: u})
}

// UpdateProfile handles PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var upd domain.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "invalid JSON body")
		return
	}

	u, err := h.Users.UpdateProfile(r.Context(), id.UserID, &upd)
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "profile update failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status:  StatusOK,
		Message: "profile updated successfully",
		Data:    u,
	})
}

// TrackLogin handles POST /api/users/track-login
func (h *UserHandler) TrackLogin(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	u, added, reasons, err := h.Users.TrackLogin(r.Context(), id.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "login tracking failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: StatusOK,
		Data: map[string]any{
			"credits":       u.Credits,
			"creditsAdded":  added,
			"creditReasons": reasons,
			"lastLoginDate": u.LastLoginAt,
		},
	})
}

// AddCredits handles POST /api/users/credits
func (h *UserHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	credits, err := h.Users.AddCredits(r.Context(), id.UserID)
	if errors.Is(err, service.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "credit update failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status:  StatusOK,
		Message: "credits added successfully",
		Data:    map[string]any{"credits": credits},
	})
}

// ListActivity handles GET /api/users/activity
func (h *UserHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.Users.ListActivity(r.Context(), id.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "activity lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: StatusOK,
		Data:   map[string]any{"activity": entries},
	})
}

// SaveInteraction handles POST /api/interactions
func (h *UserHandler) SaveInteraction(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Type domain.InteractionType `json:"type"`
		Data json.RawMessage        `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Type {
	case domain.InteractionLike, domain.InteractionReport, domain.InteractionShare, domain.InteractionSave:
	default:
		writeError(w, http.StatusBadRequest, StatusBadRequest, "unknown interaction type")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, StatusBadRequest, "interaction data is required")
		return
	}

	fi, err := h.Users.SaveInteraction(r.Context(), id.UserID, req.Type, req.Data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "interaction save failed")
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Status: StatusOK, Data: fi})
}

// ListInteractions handles GET /api/interactions
func (h *UserHandler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := h.Users.ListInteractions(r.Context(), id.UserID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, StatusServerError, "interaction list failed")
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Status: StatusOK,
		Data: map[string]any{
			"interactions": items,
			"total":        total,
		},
	})
}

// requireIdentity pulls the authenticated identity off the request, or
// writes a 401 when the auth middleware left none.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id := auth.GetIdentity(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, StatusUnauthorized, "valid authentication required")
		return nil, false
	}
	return id, true
}
