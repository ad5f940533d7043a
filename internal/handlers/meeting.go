package handlers

import (
	"net/http"

	"converse-backend/internal/meetings"
	"converse-backend/internal/models"
)

type meetingResponse struct {
	Success bool           `json:"success"`
	Meeting models.Meeting `json:"meeting"`
}

func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var input meetings.NewMeeting
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	meeting, err := h.meetings.Create(r.Context(), userID(r), input)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, meetingResponse{Success: true, Meeting: meeting})
}

func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	communityID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	list, err := h.meetings.List(r.Context(), userID(r), communityID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, struct {
		Success  bool             `json:"success"`
		Meetings []models.Meeting `json:"meetings"`
	}{true, list})
}

func (h *Handler) JoinMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	meeting, err := h.meetings.Join(r.Context(), userID(r), meetingID)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, meetingResponse{Success: true, Meeting: meeting})
}

func (h *Handler) UpdateMeetingStatus(w http.ResponseWriter, r *http.Request) {
	meetingID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	var input struct {
		Status models.MeetingStatus `json:"status"`
	}
	if err := h.decode(r, &input); err != nil {
		h.Error(w, r, err)
		return
	}

	meeting, err := h.meetings.UpdateStatus(r.Context(), userID(r), meetingID, input.Status)
	if err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, meetingResponse{Success: true, Meeting: meeting})
}

func (h *Handler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := idParam(r, "id")
	if err != nil {
		h.Error(w, r, err)
		return
	}

	if err := h.meetings.Delete(r.Context(), userID(r), meetingID); err != nil {
		h.Error(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "Meeting deleted"})
}
