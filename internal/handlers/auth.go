package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"converse-backend/internal/accounts"
	"converse-backend/internal/apperr"
	"converse-backend/internal/jwt"
	"converse-backend/internal/models"

	"github.com/go-chi/chi/v5"
)

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

type userResponse struct {
	Message string      `json:"message,omitempty"`
	User    models.User `json:"user"`
}

// issue creates the token handed back in the body and mirrored in the JWT
// cookie for browser clients.
func (h *Handler) issue(w http.ResponseWriter, r *http.Request, userID int64) (string, error) {
	rememberMe := r.URL.Query().Get("rememberMe") == "true"

	token, expires, err := h.issuer.CreateToken(rememberMe, userID)
	if err != nil {
		return "", fmt.Errorf("creating token: %w", err)
	}

	cookie := h.issuer.Cookie(token, rememberMe, expires)
	http.SetCookie(w, &cookie)
	return token, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var registration accounts.Registration
	if err := h.decode(r, &registration); err != nil {
		h.Error(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), registration)
	if err != nil {
		h.Error(w, r, err)
		return
	}

	token, err := h.issue(w, r, user.ID)
	if err != nil {
		h.Error(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, authResponse{Message: "User registered successfully", Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var login struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := h.decode(r, &login); err != nil {
		h.Error(w, r, err)
		return
	}

	user, err := h.accounts.Login(r.Context(), login.Email, login.Password)
	if err != nil {
		h.Error(w, r, err)
		return
	}

	token, err := h.issue(w, r, user.ID)
	if err != nil {
		h.Error(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), userID(r)); err != nil {
		h.Error(w, r, err)
		return
	}

	expired := jwt.ExpiredCookie()
	http.SetCookie(w, &expired)
	h.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), userID(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, userResponse{User: user})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update accounts.ProfileUpdate
	if err := h.decode(r, &update); err != nil {
		h.Error(w, r, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID(r), update)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, userResponse{Message: "Profile updated successfully", User: user})
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.Error(w, r, apperr.Wrap(apperr.Validation, "Couldn't read request body", err))
		return
	}
	if !json.Valid(raw) {
		h.Error(w, r, apperr.New(apperr.Validation, "Preferences update must be an object"))
		return
	}

	section := models.PreferenceSection(chi.URLParam(r, "section"))
	user, err := h.accounts.UpdatePreferences(r.Context(), userID(r), section, raw)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, userResponse{Message: "Preferences updated successfully", User: user})
}
