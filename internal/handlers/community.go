package handlers

import (
	"net/http"

	"converse-backend/internal/directory"
	"converse-backend/internal/models"
)

type communityResponse struct {
	Message   string           `json:"message,omitempty"`
	Community models.Community `json:"community"`
}

func (h *Handler) ListCommunities(w http.ResponseWriter, r *http.Request) {
	communities, err := h.directory.ListCommunities(r.Context(), userID(r))
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Community{"communities": communities})
}

func (h *Handler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	var input directory.NewCommunity
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	community, err := h.directory.CreateCommunity(r.Context(), userID(r), input)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, communityResponse{Message: "Community created successfully", Community: community})
}

func (h *Handler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	community, err := h.directory.GetCommunity(r.Context(), userID(r), communityID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, communityResponse{Community: community})
}

func (h *Handler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	community, err := h.directory.JoinCommunity(r.Context(), userID(r), communityID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, communityResponse{Message: "Successfully joined the community", Community: community})
}

func (h *Handler) LeaveCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.directory.LeaveCommunity(r.Context(), userID(r), communityID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "Successfully left the community"})
}

func (h *Handler) DeleteCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.directory.DeleteCommunity(r.Context(), userID(r), communityID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "Community deleted successfully"})
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	members, err := h.directory.ListMembers(r.Context(), userID(r), communityID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Member{"members": members})
}
