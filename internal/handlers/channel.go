package handlers

import (
	"net/http"

	"converse-backend/internal/directory"
	"converse-backend/internal/models"
)

type channelResponse struct {
	Message string         `json:"message,omitempty"`
	Channel models.Channel `json:"channel"`
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var input directory.NewChannel
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	channel, err := h.directory.CreateChannel(r.Context(), userID(r), input)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, channelResponse{Message: "Channel created successfully", Channel: channel})
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	channels, err := h.directory.ListChannels(r.Context(), userID(r), communityID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Channel{"channels": channels})
}

func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	channel, err := h.directory.GetChannel(r.Context(), userID(r), channelID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, channelResponse{Channel: channel})
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.directory.DeleteChannel(r.Context(), userID(r), channelID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "Channel deleted successfully"})
}
