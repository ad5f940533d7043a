package clientsync_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"converse-backend/internal/apiclient"
	"converse-backend/internal/clientsync"
	"converse-backend/internal/config"
	"converse-backend/internal/database"
	"converse-backend/internal/hub"
	"converse-backend/internal/models"
	"converse-backend/internal/server"
	"converse-backend/internal/wsclient"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	store, err := database.OpenSqlite(context.Background(), sugar, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.JwtSecret = "a-test-secret-that-is-long-enough"

	s, err := server.New(sugar, &cfg, store, nil, server.Options{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

type session struct {
	api    *apiclient.Client
	user   models.User
	syncer *clientsync.Syncer
	ws     *wsclient.Client
}

// connect logs a user in with a syncer fed by a live websocket, the way a
// desktop client runs.
func connect(t *testing.T, srv *httptest.Server, username string, hiddenPath string) *session {
	t.Helper()
	ctx := context.Background()

	s := &session{api: apiclient.New(srv.URL)}
	user, err := s.api.Register(ctx, username, username+"@gmail.com", "Secret123")
	if err != nil {
		t.Fatal(err)
	}
	s.user = user

	hidden, err := clientsync.OpenHiddenStore(hiddenPath)
	if err != nil {
		t.Fatal(err)
	}

	sugar := zap.NewNop().Sugar()
	s.ws = wsclient.New(sugar, wsclient.Options{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Header: wsclient.BearerHeader(s.api.Token()),
		UserID: user.ID,
		OnEvent: func(e hub.Envelope) {
			s.syncer.HandleEvent(e)
		},
	})
	s.syncer = clientsync.New(sugar, s.api, hidden, s.ws, user.ID)

	s.ws.Start(ctx)
	t.Cleanup(s.ws.Close)
	return s
}

func waitForContents(t *testing.T, s *session, want []string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		var got []string
		for _, m := range s.syncer.Messages() {
			got = append(got, m.Content)
		}
		if slices.Equal(got, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s sees %q, want %q", s.user.Username, got, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteForMeStaysLocal(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	dir := t.TempDir()

	alice := connect(t, srv, "alice", filepath.Join(dir, "alice.json"))
	bob := connect(t, srv, "bobby", filepath.Join(dir, "bob.json"))

	community, err := alice.api.CreateCommunity(ctx, "Test", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.api.JoinCommunity(ctx, community.ID); err != nil {
		t.Fatal(err)
	}
	channelID := community.Channels[0]

	first, err := alice.api.CreateMessage(ctx, channelID, "keep", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := alice.api.CreateMessage(ctx, channelID, "hide me", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []*session{alice, bob} {
		if err := s.syncer.SelectChannel(ctx, channelID); err != nil {
			t.Fatal(err)
		}
	}

	if err := alice.syncer.DeleteForMe(second.ID); err != nil {
		t.Fatal(err)
	}
	if err := alice.syncer.SelectChannel(ctx, channelID); err != nil {
		t.Fatal(err)
	}

	waitForContents(t, alice, []string{"keep"})
	waitForContents(t, bob, []string{"keep", "hide me"})

	stored, err := bob.api.ListMessages(ctx, channelID, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, m := range stored {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]int64{first.ID, second.ID}, ids); diff != "" {
		t.Errorf("stored messages mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveEventsReachOtherClients(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	dir := t.TempDir()

	alice := connect(t, srv, "alice", filepath.Join(dir, "alice.json"))
	bob := connect(t, srv, "bobby", filepath.Join(dir, "bob.json"))

	community, err := alice.api.CreateCommunity(ctx, "Test", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.api.JoinCommunity(ctx, community.ID); err != nil {
		t.Fatal(err)
	}
	channelID := community.Channels[0]

	for _, s := range []*session{alice, bob} {
		if err := s.syncer.SelectChannel(ctx, channelID); err != nil {
			t.Fatal(err)
		}
	}

	// give both subscriptions time to reach the hub
	deadline := time.Now().Add(3 * time.Second)
	for alice.ws.State() != wsclient.Connected || bob.ws.State() != wsclient.Connected {
		if time.Now().After(deadline) {
			t.Fatal("clients never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the room may not be joined yet when the first post lands, so keep
	// posting until bob's view picks one up over the socket
	var posted models.Message
	deadline = time.Now().Add(3 * time.Second)
	for {
		posted, err = alice.api.CreateMessage(ctx, channelID, "hello", "")
		if err != nil {
			t.Fatal(err)
		}
		alice.syncer.Posted(posted)
		time.Sleep(20 * time.Millisecond)
		if slices.ContainsFunc(bob.syncer.Messages(), func(m models.Message) bool { return m.ID == posted.ID }) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bob never received a message-created event")
		}
		if _, err := alice.syncer.DeleteForEveryone(ctx, []int64{posted.ID}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := alice.api.EditMessage(ctx, posted.ID, "hi"); err != nil {
		t.Fatal(err)
	}
	waitForContents(t, bob, []string{"hi"})
	waitForContents(t, alice, []string{"hi"})

	deleted, err := alice.syncer.DeleteForEveryone(ctx, []int64{posted.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 {
		t.Fatalf("deleted = %v", deleted)
	}
	waitForContents(t, bob, nil)
}
