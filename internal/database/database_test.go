package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"converse-backend/internal/models"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenSqlite(context.Background(), zap.NewNop().Sugar(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var epoch = time.UnixMilli(1_750_000_000_000).UTC()

func insertUser(t *testing.T, s *Store, id int64, username string) models.User {
	t.Helper()
	user := models.User{
		ID:          id,
		Username:    username,
		Email:       username + "@gmail.com",
		Password:    make([]byte, 60),
		Status:      models.StatusOffline,
		Preferences: models.DefaultPreferences(),
		CreatedAt:   epoch,
	}
	if err := s.InsertUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

func insertCommunity(t *testing.T, s *Store, id int64, owner int64) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertCommunity(ctx, models.Community{ID: id, OwnerID: owner, Name: "Test", Icon: "🌐", IsPublic: true, CreatedAt: epoch}); err != nil {
			return err
		}
		return q.AddMember(ctx, id, owner, epoch)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func insertChannel(t *testing.T, s *Store, id int64, communityID int64, name string) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(q *Queries) error {
		return q.InsertChannel(ctx, models.Channel{ID: id, CommunityID: communityID, Name: name, Type: models.ChannelText, CreatedAt: epoch})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func insertMessage(t *testing.T, s *Store, id int64, channelID int64, authorID int64, content string) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(q *Queries) error {
		message := models.Message{ID: id, ChannelID: channelID, Author: models.Author{ID: authorID}, Content: content, Type: models.MessageText, CreatedAt: epoch, UpdatedAt: epoch}
		if err := q.InsertMessage(ctx, message); err != nil {
			return err
		}
		return q.AppendChannelMessage(ctx, channelID, id)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := insertUser(t, s, 1, "alice")

	got, err := s.GetUser(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(alice.Preferences, got.Preferences); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
	if got.Username != "alice" || !got.CreatedAt.Equal(epoch) || len(got.Communities) != 0 {
		t.Errorf("GetUser() = %+v", got)
	}

	if _, err := s.GetUserByEmail(ctx, "alice@gmail.com"); err != nil {
		t.Errorf("GetUserByEmail() error = %v", err)
	}

	dup := alice
	dup.ID = 2
	if err := s.InsertUser(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate InsertUser() error = %v, want ErrDuplicate", err)
	}

	if _, err := s.GetUser(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(99) error = %v, want ErrNotFound", err)
	}

	if err := s.UpdateUserStatus(ctx, 1, models.StatusOnline); err != nil {
		t.Fatal(err)
	}
	author, _ := s.GetAuthor(ctx, 1)
	if author.Status != models.StatusOnline {
		t.Errorf("status = %q, want online", author.Status)
	}
}

func TestGetAuthorsKeepsOrder(t *testing.T) {
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertUser(t, s, 2, "bob")
	insertUser(t, s, 3, "carol")

	authors, err := s.GetAuthors(context.Background(), []int64{3, 99, 1})
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, a := range authors {
		names = append(names, a.Username)
	}
	if diff := cmp.Diff([]string{"carol", "alice"}, names); diff != "" {
		t.Errorf("GetAuthors() mismatch (-want +got):\n%s", diff)
	}
}

func TestMembershipBothSides(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertUser(t, s, 2, "bob")
	insertCommunity(t, s, 10, 1)

	if err := s.AddMember(ctx, 10, 2, epoch.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMember(ctx, 10, 2, epoch); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second AddMember() error = %v, want ErrDuplicate", err)
	}

	community, err := s.GetCommunity(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(models.IDList{1, 2}, community.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	bob, _ := s.GetUser(ctx, 2)
	if diff := cmp.Diff(models.IDList{10}, bob.Communities); diff != "" {
		t.Errorf("communities mismatch (-want +got):\n%s", diff)
	}

	if err := s.RemoveMember(ctx, 10, 2); err != nil {
		t.Fatal(err)
	}
	bob, _ = s.GetUser(ctx, 2)
	if len(bob.Communities) != 0 {
		t.Errorf("bob still lists %v", bob.Communities)
	}
	if err := s.RemoveMember(ctx, 10, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveMember() error = %v, want ErrNotFound", err)
	}
}

func TestChannelPositions(t *testing.T) {
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertCommunity(t, s, 10, 1)
	insertChannel(t, s, 30, 10, "general")
	insertChannel(t, s, 20, 10, "random")

	channels, err := s.ListChannels(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 2 || channels[0].Name != "general" || channels[1].Name != "random" {
		t.Errorf("ListChannels() = %+v", channels)
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertCommunity(t, s, 10, 1)
	insertChannel(t, s, 20, 10, "general")
	for i := int64(1); i <= 5; i++ {
		insertMessage(t, s, 100+i, 20, 1, "m")
	}

	messages, err := s.ListMessages(ctx, 20, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 || messages[0].ID != 104 || messages[1].ID != 103 {
		t.Errorf("ListMessages(limit 2, offset 1) ids = %v", messages)
	}
	if messages[0].Author.Username != "alice" {
		t.Errorf("author not resolved: %+v", messages[0].Author)
	}

	channel, _ := s.GetChannel(ctx, 20)
	if diff := cmp.Diff(models.IDList{101, 102, 103, 104, 105}, channel.Messages); diff != "" {
		t.Errorf("channel list mismatch (-want +got):\n%s", diff)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertCommunity(ctx, models.Community{ID: 10, OwnerID: 1, Name: "Test", CreatedAt: epoch}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v", err)
	}

	if exists, _ := s.CommunityExists(ctx, 10); exists {
		t.Error("community survived rollback")
	}
}

func TestDeleteCommunityCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertUser(t, s, 2, "bob")
	insertCommunity(t, s, 10, 1)
	_ = s.AddMember(ctx, 10, 2, epoch)
	insertChannel(t, s, 20, 10, "general")
	insertChannel(t, s, 21, 10, "random")
	insertMessage(t, s, 100, 20, 1, "hello")
	_ = s.InsertMeeting(ctx, models.Meeting{ID: 50, CommunityID: 10, ChannelID: 21, Organizer: models.Author{ID: 1}, Title: "sync",
		StartTime: epoch, Reminder: models.ReminderNone, Status: models.MeetingScheduled, CreatedAt: epoch, UpdatedAt: epoch})
	_ = s.AddParticipant(ctx, 50, 2, epoch)

	if err := s.WithTx(ctx, func(q *Queries) error { return q.DeleteCommunity(ctx, 10) }); err != nil {
		t.Fatal(err)
	}

	for _, userID := range []int64{1, 2} {
		user, _ := s.GetUser(ctx, userID)
		if user.Communities.Contains(10) {
			t.Errorf("user %d still lists the community", userID)
		}
	}
	if _, err := s.GetChannel(ctx, 20); !errors.Is(err, ErrNotFound) {
		t.Errorf("channel survived: %v", err)
	}
	if _, err := s.GetMessage(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("message survived: %v", err)
	}
	if _, err := s.GetMeeting(ctx, 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("meeting survived: %v", err)
	}
}

func TestDeleteChannelDetachesMeetings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertCommunity(t, s, 10, 1)
	insertChannel(t, s, 20, 10, "general")
	insertMessage(t, s, 100, 20, 1, "hello")
	end := epoch.Add(time.Hour)
	_ = s.InsertMeeting(ctx, models.Meeting{ID: 50, CommunityID: 10, ChannelID: 20, Organizer: models.Author{ID: 1}, Title: "sync",
		StartTime: epoch, EndTime: &end, Reminder: models.Reminder5, Status: models.MeetingScheduled, CreatedAt: epoch, UpdatedAt: epoch})

	if err := s.WithTx(ctx, func(q *Queries) error { return q.DeleteChannel(ctx, 20) }); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetMessage(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("message survived channel delete: %v", err)
	}
	meeting, err := s.GetMeeting(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if meeting.ChannelID != 0 || meeting.EndTime == nil || !meeting.EndTime.Equal(end) {
		t.Errorf("meeting = %+v", meeting)
	}
}

func TestMeetingParticipants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertUser(t, s, 2, "bob")
	insertCommunity(t, s, 10, 1)
	for i, status := range []models.MeetingStatus{models.MeetingScheduled, models.MeetingCancelled, models.MeetingOngoing} {
		err := s.InsertMeeting(ctx, models.Meeting{ID: int64(50 + i), CommunityID: 10, Organizer: models.Author{ID: 1}, Title: "m",
			StartTime: epoch.Add(-time.Duration(i) * time.Hour), Reminder: models.ReminderNone, Status: status, CreatedAt: epoch, UpdatedAt: epoch})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := s.AddParticipant(ctx, 50, 2, epoch); err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, 50, 2, epoch); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second AddParticipant() error = %v, want ErrDuplicate", err)
	}

	meetings, err := s.ListMeetings(ctx, 10, models.MeetingScheduled, models.MeetingOngoing)
	if err != nil {
		t.Fatal(err)
	}
	if len(meetings) != 2 || meetings[0].ID != 52 || meetings[1].ID != 50 {
		t.Fatalf("ListMeetings() = %+v", meetings)
	}
	if diff := cmp.Diff(models.IDList{2}, meetings[1].Participants); diff != "" {
		t.Errorf("participants mismatch (-want +got):\n%s", diff)
	}
	if meetings[0].Organizer.Username != "alice" {
		t.Errorf("organizer not resolved: %+v", meetings[0].Organizer)
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertUser(t, s, 1, "alice")
	insertCommunity(t, s, 10, 1)
	insertChannel(t, s, 20, 10, "general")
	insertMessage(t, s, 100, 20, 1, "listed")
	insertMessage(t, s, 101, 20, 1, "unlisted")

	report, err := s.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Clean() {
		t.Fatalf("fresh store not clean: %+v", report)
	}

	// simulate writes that were interrupted halfway
	mustExec(t, s, "DELETE FROM channel_messages WHERE message_id = 101")
	mustExec(t, s, "INSERT INTO channel_messages (channel_id, message_id) VALUES (20, 999)")
	mustExec(t, s, "DELETE FROM community_members WHERE community_id = 10 AND user_id = 1")

	report, err = s.Reconcile(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	want := Report{
		StaleListEntries: []ChannelMessage{{ChannelID: 20, MessageID: 999}},
		UnlistedMessages: []ChannelMessage{{ChannelID: 20, MessageID: 101}},
		OwnersNotMembers: []Membership{{CommunityID: 10, UserID: 1}},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Reconcile(ctx, true); err != nil {
		t.Fatal(err)
	}
	report, _ = s.Reconcile(ctx, false)
	if !report.Clean() {
		t.Errorf("repair left drift: %+v", report)
	}
	channel, _ := s.GetChannel(ctx, 20)
	if diff := cmp.Diff(models.IDList{100, 101}, channel.Messages); diff != "" {
		t.Errorf("channel list mismatch (-want +got):\n%s", diff)
	}
}

func mustExec(t *testing.T, s *Store, query string) {
	t.Helper()
	if _, err := s.db.Exec(query); err != nil {
		t.Fatal(err)
	}
}
