package handlers

import (
	"net/http"

	"converse-backend/internal/messages"
	"converse-backend/internal/models"
)

type messageResponse struct {
	Message models.Message `json:"message"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Content   string             `json:"content"`
		ChannelID int64              `json:"channelId,string"`
		Type      models.MessageType `json:"type"`
	}
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	message, err := h.messages.Create(r.Context(), userID(r), input.ChannelID, input.Content, input.Type)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, messageResponse{Message: message})
}

// ListMessages answers one page, oldest first. limit and skip fall back to
// their defaults when missing.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	limit := intQuery(r, "limit", messages.DefaultLimit)
	skip := intQuery(r, "skip", 0)

	list, err := h.messages.List(r.Context(), userID(r), channelID, limit, skip)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string][]models.Message{"messages": list})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	message, err := h.messages.Get(r.Context(), userID(r), messageID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, messageResponse{Message: message})
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	var input struct {
		Content string `json:"content"`
	}
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	message, err := h.messages.Edit(r.Context(), userID(r), messageID, input.Content)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, messageResponse{Message: message})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.messages.Delete(r.Context(), userID(r), messageID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}
