package handlers

import (
	"net/http"

	"converse-backend/internal/hub"
)

// HandleWebSocket runs behind UserVerifier, so the hub only accepts an
// identify for the user the credential belongs to.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), userID(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}

	h.hub.ServeConn(w, r, hub.Identity{UserID: user.ID, Username: user.Username})
}
