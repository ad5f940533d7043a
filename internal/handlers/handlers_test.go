package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"converse-backend/internal/accounts"
	"converse-backend/internal/config"
	"converse-backend/internal/database"
	"converse-backend/internal/directory"
	"converse-backend/internal/hub"
	"converse-backend/internal/jwt"
	"converse-backend/internal/keyValue"
	"converse-backend/internal/meetings"
	"converse-backend/internal/messages"
	"converse-backend/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "a-test-secret-that-is-long-enough"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	sugar := zap.NewNop().Sugar()

	store, err := database.OpenSqlite(ctx, sugar, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	kv := keyValue.New(sugar, nil)

	var dir *directory.Directory
	h, err := hub.New(sugar, hub.NewLocalBroker(), kv, hub.AuthorizerFunc(func(ctx context.Context, userID int64, channelID int64) error {
		return dir.CanReadChannel(ctx, userID, channelID)
	}), nil)
	if err != nil {
		t.Fatal(err)
	}
	dir = directory.New(sugar, store, h, h)

	handler := New(Deps{
		Sugar:     sugar,
		Issuer:    jwt.NewIssuer(testSecret, false),
		KeyValue:  kv,
		Store:     store,
		Accounts:  accounts.New(sugar, store, bcrypt.MinCost),
		Directory: dir,
		Messages:  messages.New(sugar, store, h),
		Meetings:  meetings.New(sugar, store, h, "/meet"),
		Hub:       h,
	})

	cfg := config.Default()
	cfg.JwtSecret = testSecret

	srv := httptest.NewServer(handler.Router(&cfg))
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return srv
}

type response struct {
	status int
	body   map[string]json.RawMessage
}

func (r response) field(t *testing.T, name string, v any) {
	t.Helper()
	raw, ok := r.body[name]
	if !ok {
		t.Fatalf("response has no %q field: %v", name, r.body)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decoding %q: %v", name, err)
	}
}

func (r response) errorMessage(t *testing.T) string {
	t.Helper()
	var message string
	r.field(t, "error", &message)
	return message
}

func call(t *testing.T, srv *httptest.Server, method string, path string, token string, body any) response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	result := response{status: res.StatusCode}
	json.NewDecoder(res.Body).Decode(&result.body)
	return result
}

type account struct {
	token string
	user  models.User
}

func signUp(t *testing.T, srv *httptest.Server, username string) account {
	t.Helper()
	res := call(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@gmail.com",
		"password": "Secret123",
	})
	if res.status != http.StatusCreated {
		t.Fatalf("register %s = %d %v", username, res.status, res.body)
	}

	var a account
	res.field(t, "token", &a.token)
	res.field(t, "user", &a.user)
	return a
}

func createCommunity(t *testing.T, srv *httptest.Server, owner account, name string) models.Community {
	t.Helper()
	res := call(t, srv, http.MethodPost, "/api/communities", owner.token, map[string]string{"name": name})
	if res.status != http.StatusCreated {
		t.Fatalf("create community = %d %v", res.status, res.body)
	}
	var community models.Community
	res.field(t, "community", &community)
	return community
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + "/" + strconv.FormatInt(id, 10) + suffix
}

func TestAuthFlow(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice")

	res := call(t, srv, http.MethodGet, "/api/auth/me", alice.token, nil)
	if res.status != http.StatusOK {
		t.Fatalf("me = %d %v", res.status, res.body)
	}
	var me models.User
	res.field(t, "user", &me)
	if me.ID != alice.user.ID || me.Username != "alice" {
		t.Errorf("me = %+v", me)
	}

	res = call(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "email": "other@gmail.com", "password": "Secret123"})
	if res.status != http.StatusConflict {
		t.Errorf("duplicate register = %d", res.status)
	}

	res = call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@gmail.com", "password": "nope"})
	if res.status != http.StatusUnauthorized || res.errorMessage(t) != "Invalid email or password" {
		t.Errorf("bad login = %d %v", res.status, res.body)
	}

	res = call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@gmail.com", "password": "Secret123"})
	if res.status != http.StatusOK {
		t.Fatalf("login = %d %v", res.status, res.body)
	}

	res = call(t, srv, http.MethodPut, "/api/auth/preferences/theme", alice.token, map[string]bool{"darkMode": false})
	if res.status != http.StatusBadRequest {
		t.Errorf("unknown section = %d", res.status)
	}

	res = call(t, srv, http.MethodPut, "/api/auth/preferences/appearance", alice.token, map[string]bool{"darkMode": false})
	if res.status != http.StatusOK {
		t.Fatalf("preferences = %d %v", res.status, res.body)
	}
	var updated models.User
	res.field(t, "user", &updated)
	if updated.Preferences.Appearance.DarkMode {
		t.Error("dark mode still on")
	}

	res = call(t, srv, http.MethodPost, "/api/auth/logout", alice.token, nil)
	if res.status != http.StatusOK {
		t.Errorf("logout = %d", res.status)
	}
}

func TestUserVerifier(t *testing.T) {
	srv := newServer(t)

	other, _, err := jwt.NewIssuer("some-other-secret-entirely", false).CreateToken(false, 1)
	if err != nil {
		t.Fatal(err)
	}
	orphan, _, err := jwt.NewIssuer(testSecret, false).CreateToken(false, 12345)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"Error: no token", ""},
		{"Error: garbage", "not-a-token"},
		{"Error: wrong secret", other},
		{"Error: user doesn't exist", orphan},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, srv, http.MethodGet, "/api/communities", tc.token, nil)
			if res.status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", res.status)
			}
			if res.errorMessage(t) == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestCommunityFlow(t *testing.T) {
	srv := newServer(t)
	owner := signUp(t, srv, "owner")
	bob := signUp(t, srv, "bobby")

	community := createCommunity(t, srv, owner, "Test")

	res := call(t, srv, http.MethodGet, idPath("/api/channels/community", community.ID, ""), owner.token, nil)
	var channels []models.Channel
	res.field(t, "channels", &channels)
	if len(channels) != 1 || channels[0].Name != "general" {
		t.Fatalf("channels = %+v", channels)
	}

	res = call(t, srv, http.MethodGet, idPath("/api/communities", community.ID, ""), bob.token, nil)
	if res.status != http.StatusForbidden {
		t.Errorf("get as non-member = %d", res.status)
	}

	res = call(t, srv, http.MethodPost, idPath("/api/communities", community.ID, "/join"), bob.token, nil)
	if res.status != http.StatusOK {
		t.Fatalf("join = %d %v", res.status, res.body)
	}
	res = call(t, srv, http.MethodPost, idPath("/api/communities", community.ID, "/join"), bob.token, nil)
	if res.status != http.StatusConflict {
		t.Errorf("second join = %d", res.status)
	}

	res = call(t, srv, http.MethodPost, idPath("/api/communities", community.ID, "/leave"), owner.token, nil)
	if res.status != http.StatusForbidden {
		t.Errorf("owner leave = %d", res.status)
	}

	res = call(t, srv, http.MethodGet, idPath("/api/communities", community.ID, "/members"), owner.token, nil)
	var members []models.Member
	res.field(t, "members", &members)
	if len(members) != 2 {
		t.Errorf("members = %+v", members)
	}

	res = call(t, srv, http.MethodDelete, idPath("/api/communities", community.ID, ""), bob.token, nil)
	if res.status != http.StatusForbidden {
		t.Errorf("delete by member = %d", res.status)
	}
	res = call(t, srv, http.MethodDelete, idPath("/api/communities", community.ID, ""), owner.token, nil)
	if res.status != http.StatusOK {
		t.Fatalf("delete by owner = %d %v", res.status, res.body)
	}

	res = call(t, srv, http.MethodGet, "/api/communities", bob.token, nil)
	var communities []models.Community
	res.field(t, "communities", &communities)
	if len(communities) != 0 {
		t.Errorf("bob still lists %+v", communities)
	}

	res = call(t, srv, http.MethodGet, "/api/communities/abc", owner.token, nil)
	if res.status != http.StatusBadRequest {
		t.Errorf("bad id = %d", res.status)
	}
}

func TestMessageFlow(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bobby")

	community := createCommunity(t, srv, alice, "Test")
	call(t, srv, http.MethodPost, idPath("/api/communities", community.ID, "/join"), bob.token, nil)
	channelID := strconv.FormatInt(community.Channels[0], 10)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"Error: empty content", `{"content": "   ", "channelId": "` + channelID + `"}`, http.StatusBadRequest},
		{"Error: missing channel", `{"content": "hello", "channelId": "999"}`, http.StatusNotFound},
		{"Error: not json", `hello`, http.StatusBadRequest},
		{"Error: too long", `{"content": "` + strings.Repeat("a", 2001) + `", "channelId": "` + channelID + `"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, srv, http.MethodPost, "/api/messages", alice.token, tc.body)
			if res.status != tc.status {
				t.Errorf("status = %d, want %d (%v)", res.status, tc.status, res.body)
			}
		})
	}

	var ids []int64
	for _, content := range []string{"one", "two", "three"} {
		res := call(t, srv, http.MethodPost, "/api/messages", alice.token, `{"content": "`+content+`", "channelId": "`+channelID+`"}`)
		if res.status != http.StatusCreated {
			t.Fatalf("post = %d %v", res.status, res.body)
		}
		var message models.Message
		res.field(t, "message", &message)
		ids = append(ids, message.ID)
	}

	res := call(t, srv, http.MethodPut, idPath("/api/messages", ids[0], ""), bob.token, map[string]string{"content": "hijacked"})
	if res.status != http.StatusForbidden {
		t.Errorf("edit by bob = %d", res.status)
	}

	res = call(t, srv, http.MethodPut, idPath("/api/messages", ids[0], ""), alice.token, map[string]string{"content": "uno"})
	var edited models.Message
	res.field(t, "message", &edited)
	if edited.Content != "uno" || !edited.IsEdited {
		t.Errorf("edited = %+v", edited)
	}

	res = call(t, srv, http.MethodDelete, idPath("/api/messages", ids[1], ""), alice.token, nil)
	if res.status != http.StatusOK {
		t.Fatalf("delete = %d %v", res.status, res.body)
	}

	res = call(t, srv, http.MethodGet, "/api/messages/channel/"+channelID+"?limit=10", bob.token, nil)
	var list []models.Message
	res.field(t, "messages", &list)

	var contents []string
	for _, m := range list {
		contents = append(contents, m.Content)
	}
	if diff := cmp.Diff([]string{"uno", "three"}, contents); diff != "" {
		t.Errorf("listed contents mismatch (-want +got):\n%s", diff)
	}

	res = call(t, srv, http.MethodGet, idPath("/api/messages", ids[1], ""), bob.token, nil)
	if res.status != http.StatusNotFound {
		t.Errorf("get deleted = %d", res.status)
	}
}

func TestMeetingFlow(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice")
	community := createCommunity(t, srv, alice, "Test")

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	res := call(t, srv, http.MethodPost, "/api/meetings", alice.token,
		`{"title": "Standup", "community": "`+strconv.FormatInt(community.ID, 10)+`", "startTime": "`+start+`"}`)
	if res.status != http.StatusCreated {
		t.Fatalf("create meeting = %d %v", res.status, res.body)
	}
	var meeting models.Meeting
	res.field(t, "meeting", &meeting)
	if !strings.HasPrefix(meeting.MeetingLink, "/meet/") {
		t.Errorf("meeting link = %q", meeting.MeetingLink)
	}

	res = call(t, srv, http.MethodPatch, idPath("/api/meetings", meeting.ID, "/status"), alice.token, map[string]string{"status": "cancelled"})
	if res.status != http.StatusOK {
		t.Fatalf("cancel = %d %v", res.status, res.body)
	}

	res = call(t, srv, http.MethodGet, idPath("/api/meetings/community", community.ID, ""), alice.token, nil)
	var listed []models.Meeting
	res.field(t, "meetings", &listed)
	if len(listed) != 0 {
		t.Errorf("cancelled meeting listed: %+v", listed)
	}
}

func TestWebSocketReceivesPostedMessage(t *testing.T) {
	srv := newServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bobby")
	community := createCommunity(t, srv, alice, "Test")
	call(t, srv, http.MethodPost, idPath("/api/communities", community.ID, "/join"), bob.token, nil)
	channelID := strconv.FormatInt(community.Channels[0], 10)

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil); err == nil {
		t.Error("websocket upgrade without a credential succeeded")
	}

	header := http.Header{"Authorization": {"Bearer " + bob.token}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func(event string) hub.Envelope {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var envelope hub.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatal(err)
		}
		if envelope.Event != event {
			t.Fatalf("got %s (%s), want %s", envelope.Event, envelope.Data, event)
		}
		return envelope
	}

	conn.WriteJSON(map[string]string{"event": hub.Identify, "data": strconv.FormatInt(bob.user.ID, 10)})
	read(hub.Identified)
	conn.WriteJSON(map[string]any{"event": hub.SubscribeChannel, "data": channelID})
	read(hub.Subscribed)

	res := call(t, srv, http.MethodPost, "/api/messages", alice.token, `{"content": "hello", "channelId": "`+channelID+`"}`)
	if res.status != http.StatusCreated {
		t.Fatalf("post = %d %v", res.status, res.body)
	}

	var payload hub.MessagePayload
	if err := json.Unmarshal(read(hub.MessageCreated).Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Message.Content != "hello" || payload.Message.Author.Username != "alice" {
		t.Errorf("message-created = %+v", payload.Message)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	res := call(t, srv, http.MethodGet, "/api/health", "", nil)
	if res.status != http.StatusOK {
		t.Errorf("health = %d", res.status)
	}

	metricsRes, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer metricsRes.Body.Close()
	if metricsRes.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", metricsRes.StatusCode)
	}
}
