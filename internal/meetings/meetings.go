package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/database"
	"converse-backend/internal/hub"
	"converse-backend/internal/models"
	"converse-backend/internal/snowflake"
	"converse-backend/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Notifier interface {
	Emit(ctx context.Context, channelID int64, event string, data any) error
}

type Service struct {
	sugar    *zap.SugaredLogger
	store    *database.Store
	notifier Notifier
	linkBase string
	now      func() time.Time
}

// New creates the meeting service. Meeting links are linkBase + "/" + a
// random id.
func New(sugar *zap.SugaredLogger, store *database.Store, notifier Notifier, linkBase string) *Service {
	return &Service{
		sugar:    sugar,
		store:    store,
		notifier: notifier,
		linkBase: strings.TrimSuffix(linkBase, "/"),
		now:      time.Now,
	}
}

type NewMeeting struct {
	Title       string          `json:"title" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=1000"`
	CommunityID int64           `json:"community,string" validate:"required"`
	ChannelID   int64           `json:"channel,string"`
	StartTime   time.Time       `json:"startTime" validate:"required"`
	EndTime     *time.Time      `json:"endTime" validate:"omitempty,gtfield=StartTime"`
	Reminder    models.Reminder `json:"reminder" validate:"omitempty,oneof=none 5 10 15"`
}

func (s *Service) requireMember(ctx context.Context, userID int64, communityID int64) error {
	exists, err := s.store.CommunityExists(ctx, communityID)
	if err != nil {
		return fmt.Errorf("checking community %d: %w", communityID, err)
	}
	if !exists {
		return apperr.New(apperr.NotFound, "Community not found")
	}

	isMember, err := s.store.IsMember(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("checking membership: %w", err)
	}
	if !isMember {
		return apperr.New(apperr.Forbidden, "You are not a member of this community")
	}
	return nil
}

func (s *Service) load(ctx context.Context, meetingID int64) (models.Meeting, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if errors.Is(err, database.ErrNotFound) {
		return meeting, apperr.New(apperr.NotFound, "Meeting not found")
	} else if err != nil {
		return meeting, fmt.Errorf("loading meeting %d: %w", meetingID, err)
	}
	return meeting, nil
}

func (s *Service) Create(ctx context.Context, organizerID int64, input NewMeeting) (models.Meeting, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validator.Struct(input); err != nil {
		return models.Meeting{}, err
	}
	if input.Reminder == "" {
		input.Reminder = models.ReminderNone
	}

	if err := s.requireMember(ctx, organizerID, input.CommunityID); err != nil {
		return models.Meeting{}, err
	}

	if input.ChannelID != 0 {
		communityID, err := s.store.ChannelCommunityID(ctx, input.ChannelID)
		if errors.Is(err, database.ErrNotFound) || (err == nil && communityID != input.CommunityID) {
			return models.Meeting{}, apperr.New(apperr.NotFound, "Channel not found in this community")
		} else if err != nil {
			return models.Meeting{}, fmt.Errorf("resolving channel %d: %w", input.ChannelID, err)
		}
	}

	meetingID, err := snowflake.Generate()
	if err != nil {
		return models.Meeting{}, err
	}

	now := s.now()
	meeting := models.Meeting{
		ID:          meetingID,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		CommunityID: input.CommunityID,
		ChannelID:   input.ChannelID,
		Organizer:   models.Author{ID: organizerID},
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Reminder:    input.Reminder,
		Status:      models.MeetingScheduled,
		MeetingLink: s.linkBase + "/" + uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertMeeting(ctx, meeting); err != nil {
		return models.Meeting{}, fmt.Errorf("saving meeting: %w", err)
	}

	meeting, err = s.load(ctx, meetingID)
	if err != nil {
		return meeting, err
	}

	s.notify(ctx, meeting, hub.MeetingCreated)
	return meeting, nil
}

// List returns the meetings of a community that haven't ended yet, earliest
// start first.
func (s *Service) List(ctx context.Context, userID int64, communityID int64) ([]models.Meeting, error) {
	if err := s.requireMember(ctx, userID, communityID); err != nil {
		return nil, err
	}

	meetings, err := s.store.ListMeetings(ctx, communityID, models.MeetingScheduled, models.MeetingOngoing)
	if err != nil {
		return nil, fmt.Errorf("listing meetings of community %d: %w", communityID, err)
	}
	return meetings, nil
}

// Join adds userID to the participants once. The first join of a scheduled
// meeting starts it.
func (s *Service) Join(ctx context.Context, userID int64, meetingID int64) (models.Meeting, error) {
	meeting, err := s.load(ctx, meetingID)
	if err != nil {
		return meeting, err
	}

	if err := s.requireMember(ctx, userID, meeting.CommunityID); err != nil {
		return models.Meeting{}, err
	}

	switch meeting.Status {
	case models.MeetingCompleted, models.MeetingCancelled:
		return models.Meeting{}, apperr.New(apperr.Conflict, fmt.Sprintf("This meeting is %s", meeting.Status))
	}

	if meeting.HasParticipant(userID) {
		return meeting, nil
	}

	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		err := q.AddParticipant(ctx, meetingID, userID, s.now())
		if errors.Is(err, database.ErrDuplicate) {
			return nil
		} else if err != nil {
			return err
		}

		if meeting.Status == models.MeetingScheduled {
			return q.UpdateMeetingStatus(ctx, meetingID, models.MeetingOngoing, s.now())
		}
		return nil
	})
	if err != nil {
		return models.Meeting{}, fmt.Errorf("joining meeting %d: %w", meetingID, err)
	}

	meeting, err = s.load(ctx, meetingID)
	if err != nil {
		return meeting, err
	}

	s.notify(ctx, meeting, hub.MeetingUpdated)
	return meeting, nil
}

func (s *Service) requireOrganizer(ctx context.Context, requesterID int64, meetingID int64) (models.Meeting, error) {
	meeting, err := s.load(ctx, meetingID)
	if err != nil {
		return meeting, err
	}
	if meeting.Organizer.ID != requesterID {
		s.sugar.Warnf("User ID [%d] tried to manage meeting ID [%d] organized by user ID [%d]", requesterID, meetingID, meeting.Organizer.ID)
		return models.Meeting{}, apperr.New(apperr.Forbidden, "Only the organizer can manage this meeting")
	}
	return meeting, nil
}

func (s *Service) UpdateStatus(ctx context.Context, requesterID int64, meetingID int64, status models.MeetingStatus) (models.Meeting, error) {
	if !status.Valid() {
		return models.Meeting{}, apperr.New(apperr.Validation, "Invalid meeting status")
	}

	meeting, err := s.requireOrganizer(ctx, requesterID, meetingID)
	if err != nil {
		return meeting, err
	}

	if !meeting.Status.CanTransition(status) {
		return models.Meeting{}, apperr.New(apperr.Conflict, fmt.Sprintf("A meeting can't go from %s to %s", meeting.Status, status))
	}

	err = s.store.UpdateMeetingStatus(ctx, meetingID, status, s.now())
	if errors.Is(err, database.ErrNotFound) {
		return models.Meeting{}, apperr.New(apperr.NotFound, "Meeting not found")
	} else if err != nil {
		return models.Meeting{}, fmt.Errorf("updating meeting %d: %w", meetingID, err)
	}

	meeting, err = s.load(ctx, meetingID)
	if err != nil {
		return meeting, err
	}

	s.notify(ctx, meeting, hub.MeetingUpdated)
	return meeting, nil
}

func (s *Service) Delete(ctx context.Context, requesterID int64, meetingID int64) error {
	meeting, err := s.requireOrganizer(ctx, requesterID, meetingID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		return q.DeleteMeeting(ctx, meetingID)
	})
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Meeting not found")
	} else if err != nil {
		return fmt.Errorf("deleting meeting %d: %w", meetingID, err)
	}

	if meeting.ChannelID != 0 && s.notifier != nil {
		err := s.notifier.Emit(ctx, meeting.ChannelID, hub.MeetingDeleted, hub.MeetingDeletedPayload{ChannelID: meeting.ChannelID, MeetingID: meetingID})
		if err != nil {
			s.sugar.Errorf("Failed to emit %s to channel ID [%d]: %v", hub.MeetingDeleted, meeting.ChannelID, err)
		}
	}
	return nil
}

// notify tells the meeting's channel room. Meetings without a channel have
// no room to tell.
func (s *Service) notify(ctx context.Context, meeting models.Meeting, event string) {
	if meeting.ChannelID == 0 || s.notifier == nil {
		return
	}

	err := s.notifier.Emit(ctx, meeting.ChannelID, event, hub.MeetingPayload{ChannelID: meeting.ChannelID, Meeting: meeting})
	if err != nil {
		s.sugar.Errorf("Failed to emit %s to channel ID [%d]: %v", event, meeting.ChannelID, err)
	}
}
