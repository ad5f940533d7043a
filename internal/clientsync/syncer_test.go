package clientsync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"converse-backend/internal/apperr"
	"converse-backend/internal/hub"
	"converse-backend/internal/models"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mutex    sync.Mutex
	channels map[int64][]models.Message
	deleted  []int64

	// afterRead runs once the snapshot is taken, before it is returned
	afterRead func(channelID int64)
}

func (f *fakeAPI) ListMessages(_ context.Context, channelID int64, limit int, skip int) ([]models.Message, error) {
	f.mutex.Lock()
	snapshot := slices.Clone(f.channels[channelID])
	afterRead := f.afterRead
	f.mutex.Unlock()

	if afterRead != nil {
		afterRead(channelID)
	}
	return snapshot, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, messageID int64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for channelID, list := range f.channels {
		i := slices.IndexFunc(list, func(m models.Message) bool { return m.ID == messageID })
		if i >= 0 {
			f.channels[channelID] = slices.Delete(list, i, i+1)
			f.deleted = append(f.deleted, messageID)
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "Message not found")
}

type fakeRealtime struct {
	subscribed []int64
}

func (f *fakeRealtime) Subscribe(channelID int64) error {
	f.subscribed = append(f.subscribed, channelID)
	return nil
}

func (f *fakeRealtime) Unsubscribe(channelID int64) error {
	f.subscribed = slices.DeleteFunc(f.subscribed, func(id int64) bool { return id == channelID })
	return nil
}

func authored(id int64, authorID int64, channelID int64, content string) models.Message {
	return models.Message{ID: id, Content: content, ChannelID: channelID, Author: models.Author{ID: authorID}}
}

func envelope(t *testing.T, event string, data any) hub.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return hub.Envelope{Event: event, Data: raw}
}

func newSyncer(t *testing.T, api API, realtime Realtime, userID int64) *Syncer {
	t.Helper()
	hidden, err := OpenHiddenStore(filepath.Join(t.TempDir(), "hidden.json"))
	if err != nil {
		t.Fatal(err)
	}
	return New(zap.NewNop().Sugar(), api, hidden, realtime, userID)
}

func TestSelectChannelMovesSubscription(t *testing.T) {
	api := &fakeAPI{channels: map[int64][]models.Message{
		1: {authored(10, 1, 1, "one")},
		2: {authored(20, 1, 2, "two")},
	}}
	realtime := &fakeRealtime{}
	s := newSyncer(t, api, realtime, 1)

	ctx := context.Background()
	if err := s.SelectChannel(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectChannel(ctx, 2); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int64{2}, realtime.subscribed); diff != "" {
		t.Errorf("subscriptions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"two"}, contents(s.Messages())); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleEvent(t *testing.T) {
	api := &fakeAPI{channels: map[int64][]models.Message{
		1: {authored(10, 1, 1, "hello")},
	}}
	s := newSyncer(t, api, nil, 1)
	if err := s.SelectChannel(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	own := authored(11, 1, 1, "mine")
	s.Posted(own)

	events := []hub.Envelope{
		// the echo of the optimistic copy
		envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: 1, Message: own}),
		envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: 1, Message: authored(12, 2, 1, "theirs")}),
		envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: 5, Message: authored(50, 2, 5, "elsewhere")}),
		envelope(t, hub.MessageUpdated, hub.MessagePayload{ChannelID: 1, Message: authored(10, 1, 1, "hi")}),
		envelope(t, hub.MessageDeleted, hub.MessageDeletedPayload{ChannelID: 1, MessageID: 12}),
		envelope(t, hub.Typing, hub.TypingPayload{ChannelID: 1, Username: "bob"}),
		{Event: hub.MessageCreated, Data: json.RawMessage(`"garbage"`)},
	}
	for _, e := range events {
		s.HandleEvent(e)
	}

	if diff := cmp.Diff([]string{"hi", "mine"}, contents(s.Messages())); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}

	s.HandleEvent(envelope(t, hub.ChannelDeleted, hub.ChannelDeletedPayload{ChannelID: 1}))
	if got := s.Messages(); len(got) != 0 {
		t.Errorf("deleted channel still shows %+v", got)
	}
}

func TestDeleteForMeIsLocal(t *testing.T) {
	api := &fakeAPI{channels: map[int64][]models.Message{
		1: {authored(10, 2, 1, "from bob"), authored(11, 1, 1, "from me")},
	}}
	s := newSyncer(t, api, nil, 1)

	if err := s.DeleteForMe(10); err != ErrNoChannel {
		t.Errorf("delete before selecting: %v", err)
	}

	ctx := context.Background()
	if err := s.SelectChannel(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteForMe(10); err != nil {
		t.Fatal(err)
	}

	// a late created event for a hidden id stays hidden too
	s.HandleEvent(envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: 1, Message: authored(10, 2, 1, "from bob")}))
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"from me"}, contents(s.Messages())); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
	if len(api.deleted) != 0 || len(api.channels[1]) != 2 {
		t.Errorf("server state touched: deleted %v", api.deleted)
	}
}

func TestDeleteForEveryoneSkipsOthersMessages(t *testing.T) {
	api := &fakeAPI{channels: map[int64][]models.Message{
		1: {authored(10, 2, 1, "from bob"), authored(11, 1, 1, "one"), authored(12, 1, 1, "two")},
	}}
	s := newSyncer(t, api, nil, 1)
	ctx := context.Background()
	if err := s.SelectChannel(ctx, 1); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteForEveryone(ctx, []int64{10, 11, 12, 99})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int64{11, 12}, deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{11, 12}, api.deleted); diff != "" {
		t.Errorf("api calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"from bob"}, contents(s.Messages())); diff != "" {
		t.Errorf("view mismatch (-want +got):\n%s", diff)
	}
}

func TestEventsDuringFetchAreKept(t *testing.T) {
	api := &fakeAPI{channels: map[int64][]models.Message{
		1: {authored(10, 1, 1, "one")},
		2: {authored(20, 1, 2, "two"), authored(22, 2, 2, "gone soon")},
	}}
	s := newSyncer(t, api, &fakeRealtime{}, 1)

	ctx := context.Background()
	if err := s.SelectChannel(ctx, 1); err != nil {
		t.Fatal(err)
	}

	// events committed after the read arrive while the response is on its way
	api.afterRead = func(channelID int64) {
		s.HandleEvent(envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: channelID, Message: authored(21, 2, channelID, "late")}))
		s.HandleEvent(envelope(t, hub.MessageUpdated, hub.MessagePayload{ChannelID: channelID, Message: authored(20, 1, channelID, "two edited")}))
		s.HandleEvent(envelope(t, hub.MessageDeleted, hub.MessageDeletedPayload{ChannelID: channelID, MessageID: 22}))
	}
	if err := s.SelectChannel(ctx, 2); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"two edited", "late"}, contents(s.Messages())); diff != "" {
		t.Errorf("view after select mismatch (-want +got):\n%s", diff)
	}

	api.afterRead = func(channelID int64) {
		s.HandleEvent(envelope(t, hub.MessageCreated, hub.MessagePayload{ChannelID: channelID, Message: authored(23, 2, channelID, "during refresh")}))
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	// the server copy never had 21, so the refreshed snapshot drops it
	if diff := cmp.Diff([]string{"two", "gone soon", "during refresh"}, contents(s.Messages())); diff != "" {
		t.Errorf("view after refresh mismatch (-want +got):\n%s", diff)
	}
}
