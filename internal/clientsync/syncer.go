// Package clientsync merges a fetched page of messages with the live event
// stream of the hub into one view per channel, and keeps the messages a user
// hid only for themselves.
package clientsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"converse-backend/internal/hub"
	"converse-backend/internal/models"

	"go.uber.org/zap"
)

const PageSize = 50

type API interface {
	ListMessages(ctx context.Context, channelID int64, limit int, skip int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, messageID int64) error
}

// Realtime is the subscription side of the websocket client.
type Realtime interface {
	Subscribe(channelID int64) error
	Unsubscribe(channelID int64) error
}

var ErrNoChannel = errors.New("no channel selected")

type Syncer struct {
	sugar    *zap.SugaredLogger
	api      API
	hidden   *HiddenStore
	realtime Realtime
	userID   int64

	mutex sync.RWMutex
	view  *View
}

// New creates a syncer for userID. realtime may be nil, then only fetched
// state is shown.
func New(sugar *zap.SugaredLogger, api API, hidden *HiddenStore, realtime Realtime, userID int64) *Syncer {
	return &Syncer{
		sugar:    sugar,
		api:      api,
		hidden:   hidden,
		realtime: realtime,
		userID:   userID,
	}
}

func (s *Syncer) current() *View {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.view
}

func (s *Syncer) fetch(ctx context.Context, channelID int64) ([]models.Message, error) {
	snapshot, err := s.api.ListMessages(ctx, channelID, PageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("fetching channel %d: %w", channelID, err)
	}
	return s.hidden.Filter(s.userID, channelID, snapshot), nil
}

// SelectChannel switches the view to channelID: the room subscription moves
// along and the latest page is fetched with hidden messages left out.
// If the fetch fails the new view stays selected and empty until Refresh
// succeeds.
func (s *Syncer) SelectChannel(ctx context.Context, channelID int64) error {
	// the new view takes events from here on, they are replayed on top of
	// the snapshot once it arrives
	view := NewView(channelID)
	view.Begin()

	s.mutex.Lock()
	previous := s.view
	s.view = view
	s.mutex.Unlock()

	if s.realtime != nil {
		if previous != nil && previous.ChannelID() != channelID {
			if err := s.realtime.Unsubscribe(previous.ChannelID()); err != nil {
				s.sugar.Debugf("Unsubscribing from channel ID [%d]: %v", previous.ChannelID(), err)
			}
		}
		// subscribe before fetching so nothing posted in between is missed
		if err := s.realtime.Subscribe(channelID); err != nil {
			s.sugar.Debugf("Subscribing to channel ID [%d]: %v", channelID, err)
		}
	}

	return s.load(ctx, view)
}

func (s *Syncer) load(ctx context.Context, view *View) error {
	messages, err := s.fetch(ctx, view.ChannelID())
	if err != nil {
		return err
	}
	view.Reset(messages)
	return nil
}

// Refresh fetches the selected channel again. Events missed while the
// connection was down only come back this way.
func (s *Syncer) Refresh(ctx context.Context) error {
	view := s.current()
	if view == nil {
		return nil
	}

	view.Begin()
	return s.load(ctx, view)
}

func (s *Syncer) Messages() []models.Message {
	view := s.current()
	if view == nil {
		return nil
	}
	return view.Messages()
}

// HandleEvent applies a hub event to the view. Events of other channels and
// unrelated events are ignored.
func (s *Syncer) HandleEvent(envelope hub.Envelope) {
	view := s.current()
	if view == nil {
		return
	}

	switch envelope.Event {
	case hub.MessageCreated, hub.MessageUpdated:
		var payload hub.MessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sugar.Debugf("Bad %s payload: %v", envelope.Event, err)
			return
		}
		if payload.ChannelID != view.ChannelID() {
			return
		}
		if s.hidden.IsHidden(s.userID, payload.ChannelID, payload.Message.ID) {
			return
		}

		if envelope.Event == hub.MessageCreated {
			view.Add(payload.Message)
		} else {
			view.Update(payload.Message)
		}

	case hub.MessageDeleted:
		var payload hub.MessageDeletedPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sugar.Debugf("Bad %s payload: %v", envelope.Event, err)
			return
		}
		if payload.ChannelID == view.ChannelID() {
			view.Remove(payload.MessageID)
		}

	case hub.ChannelDeleted:
		var payload hub.ChannelDeletedPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		if payload.ChannelID == view.ChannelID() {
			view.Reset(nil)
		}
	}
}

// Posted shows the caller's own message right away. The echo from the hub
// is dropped as a duplicate later.
func (s *Syncer) Posted(message models.Message) {
	if view := s.current(); view != nil && view.ChannelID() == message.ChannelID {
		view.Add(message)
	}
}

// DeleteForMe hides the message for this user only. The server is never told.
func (s *Syncer) DeleteForMe(messageID int64) error {
	view := s.current()
	if view == nil {
		return ErrNoChannel
	}

	if err := s.hidden.Hide(s.userID, view.ChannelID(), messageID); err != nil {
		return err
	}
	view.Remove(messageID)
	return nil
}

// DeleteForEveryone deletes the user's own messages among messageIDs on the
// server. Ids that are not shown or not authored by the user are skipped.
// Other clients learn about it through the message-deleted event the server
// emits.
func (s *Syncer) DeleteForEveryone(ctx context.Context, messageIDs []int64) ([]int64, error) {
	view := s.current()
	if view == nil {
		return nil, ErrNoChannel
	}

	var deleted []int64
	var errs []error
	for _, id := range messageIDs {
		message, ok := view.Get(id)
		if !ok || message.Author.ID != s.userID {
			continue
		}

		if err := s.api.DeleteMessage(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("deleting message %d: %w", id, err))
			continue
		}
		view.Remove(id)
		deleted = append(deleted, id)
	}
	return deleted, errors.Join(errs...)
}
