package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cloudzz-dev/rosterchat/internal/client/api"
	"github.com/cloudzz-dev/rosterchat/internal/client/auth"
	"github.com/cloudzz-dev/rosterchat/internal/client/session"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

var (
	alice = models.User{ID: "u1", Username: "alice"}
	bob   = models.ChatUser{ID: "u2", Username: "bob"}
	carol = models.ChatUser{ID: "u3", Username: "carol"}
)

// fakeAPI is an in-memory backend. Conversation calls for a partner in
// hold block until the matching channel is closed.
type fakeAPI struct {
	mu        sync.Mutex
	users     []models.ChatUser
	messages  []models.Message
	pollOut   []models.Message
	pollErr   error
	usersErr  error
	hold      map[string]chan struct{}
	sinces    []time.Time
	convCalls map[string]int
	unreadN   int
	polls     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users:     []models.ChatUser{{ID: alice.ID, Username: alice.Username}, bob, carol},
		hold:      make(map[string]chan struct{}),
		convCalls: make(map[string]int),
	}
}

func (f *fakeAPI) ChatUsers(ctx context.Context) ([]models.ChatUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	seen := make(map[string]bool)
	var out []models.ChatUser
	for _, m := range f.messages {
		for _, u := range f.users {
			if u.ID != alice.ID && m.Involves(u.ID) && !seen[u.ID] {
				seen[u.ID] = true
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) Users(ctx context.Context) ([]models.ChatUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatUser(nil), f.users...), nil
}

func (f *fakeAPI) Unread(ctx context.Context) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadN++
	var out []models.Message
	for _, m := range f.messages {
		if m.ReceiverID == alice.ID && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAPI) Conversation(ctx context.Context, userID string) ([]models.Message, error) {
	f.mu.Lock()
	f.convCalls[userID]++
	ch := f.hold[userID]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if m.Involves(userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req models.MessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.Message{
		ID:         "m" + strconv.Itoa(len(f.messages)+1),
		SenderID:   alice.ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
	}
	f.messages = append(f.messages, m)
	return &m, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == messageID {
			f.messages[i].Read = true
			return &f.messages[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) Poll(ctx context.Context, since time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.sinces = append(f.sinces, since)
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	out := f.pollOut
	f.pollOut = nil
	return out, nil
}

func (f *fakeAPI) receive(from string, content string) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.Message{ID: "m" + strconv.Itoa(len(f.messages)+1), SenderID: from, ReceiverID: alice.ID, Content: content}
	f.messages = append(f.messages, m)
	f.pollOut = append(f.pollOut, m)
	return m
}

// steppedClock returns the queued times in order, repeating the last one.
type steppedClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *steppedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	base := time.Date(2025, 4, 23, 10, 0, 0, 0, time.UTC)
	clock := &steppedClock{times: []time.Time{
		base,
		base.Add(3 * time.Second),
		base.Add(6 * time.Second),
		base.Add(2 * time.Second), // clock stepped back
		base.Add(9 * time.Second),
	}}
	api := newFakeAPI()
	s := NewSession(api, alice, WithClock(clock.now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := s.Poll(ctx); err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
	}
	for i := 1; i < len(api.sinces); i++ {
		if api.sinces[i].Before(api.sinces[i-1]) {
			t.Fatalf("watermark went backwards: %v then %v", api.sinces[i-1], api.sinces[i])
		}
	}
	if !api.sinces[1].After(api.sinces[0]) {
		t.Fatalf("empty poll did not advance the watermark")
	}
	if got := s.Snapshot().LastPoll; !got.Equal(base.Add(9 * time.Second)) {
		t.Fatalf("expected watermark %v, got %v", base.Add(9*time.Second), got)
	}
}

func TestFailedPollKeepsWatermark(t *testing.T) {
	base := time.Date(2025, 4, 23, 10, 0, 0, 0, time.UTC)
	clock := &steppedClock{times: []time.Time{base, base.Add(time.Minute)}}
	api := newFakeAPI()
	api.pollErr = errors.New("unreachable")
	s := NewSession(api, alice, WithClock(clock.now))

	if err := s.Poll(context.Background()); err == nil {
		t.Fatalf("expected poll error")
	}
	if got := s.Snapshot().LastPoll; !got.Equal(base) {
		t.Fatalf("expected watermark to stay at %v, got %v", base, got)
	}
}

func TestCountUnread(t *testing.T) {
	msgs := []models.Message{
		{SenderID: "u2", ReceiverID: "u1"},
		{SenderID: "u2", ReceiverID: "u1"},
		{SenderID: "u3", ReceiverID: "u1"},
		{SenderID: "u3", ReceiverID: "u1", Read: true},
		{SenderID: "u1", ReceiverID: "u2"},
	}
	got := CountUnread(msgs, "u1")
	if len(got) != 2 || got["u2"] != 2 || got["u3"] != 1 {
		t.Fatalf("unexpected counts %v", got)
	}
	again := CountUnread(msgs, "u1")
	if len(again) != len(got) || again["u2"] != got["u2"] || again["u3"] != got["u3"] {
		t.Fatalf("recount differs: %v vs %v", got, again)
	}
	if n := len(CountUnread(nil, "u1")); n != 0 {
		t.Fatalf("expected no counts, got %d", n)
	}
}

func TestPollRecomputesUnread(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, alice)
	ctx := context.Background()

	api.receive(bob.ID, "one")
	api.receive(bob.ID, "two")
	api.receive(carol.ID, "three")
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	counts := s.Snapshot().UnreadCounts
	if counts[bob.ID] != 2 || counts[carol.ID] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	// Reading bob's thread clears his count on the next recount.
	api.mu.Lock()
	for i := range api.messages {
		if api.messages[i].SenderID == bob.ID {
			api.messages[i].Read = true
		}
	}
	api.mu.Unlock()
	api.receive(carol.ID, "four")
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	counts = s.Snapshot().UnreadCounts
	if _, ok := counts[bob.ID]; ok || counts[carol.ID] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}

	before := api.unreadN
	if err := s.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if api.unreadN != before {
		t.Fatalf("empty poll should not refetch unread messages")
	}
}

func TestPollRefreshesActiveConversation(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, alice)
	ctx := context.Background()
	if err := s.SelectUser(ctx, &bob); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}

	api.receive(carol.ID, "not for this thread")
	s.Poll(ctx)
	if n := api.convCalls[bob.ID]; n != 1 {
		t.Fatalf("unrelated message refreshed the thread (%d fetches)", n)
	}

	api.receive(bob.ID, "hello")
	s.Poll(ctx)
	msgs := s.Snapshot().Messages
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("expected bob's message in thread, got %+v", msgs)
	}
}

func TestStaleConversationIsDropped(t *testing.T) {
	api := newFakeAPI()
	api.receive(bob.ID, "from bob")
	api.receive(carol.ID, "from carol")
	release := make(chan struct{})
	api.hold[bob.ID] = release

	s := NewSession(api, alice)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- s.SelectUser(ctx, &bob) }()

	// Wait for the bob fetch to be in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		api.mu.Lock()
		n := api.convCalls[bob.ID]
		api.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bob fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.SelectUser(ctx, &carol); err != nil {
		t.Fatalf("SelectUser carol: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("SelectUser bob: %v", err)
	}

	st := s.Snapshot()
	if st.Selected == nil || st.Selected.ID != carol.ID {
		t.Fatalf("expected carol selected, got %+v", st.Selected)
	}
	if len(st.Messages) != 1 || st.Messages[0].SenderID != carol.ID {
		t.Fatalf("stale thread applied: %+v", st.Messages)
	}
}

func TestSwitchingPartnerClearsThread(t *testing.T) {
	api := newFakeAPI()
	api.receive(bob.ID, "from bob")
	s := NewSession(api, alice)
	ctx := context.Background()
	s.SelectUser(ctx, &bob)

	release := make(chan struct{})
	api.hold[carol.ID] = release
	go s.SelectUser(ctx, &carol)
	defer close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := s.Snapshot()
		if st.Selected != nil && st.Selected.ID == carol.ID {
			if len(st.Messages) != 0 {
				t.Fatalf("bob's thread shown under carol: %+v", st.Messages)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("carol never selected")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDeselectClearsMessages(t *testing.T) {
	api := newFakeAPI()
	api.receive(bob.ID, "hi")
	s := NewSession(api, alice)
	s.SelectUser(context.Background(), &bob)
	s.SelectUser(context.Background(), nil)
	st := s.Snapshot()
	if st.Selected != nil || len(st.Messages) != 0 {
		t.Fatalf("expected empty selection, got %+v", st)
	}
}

func TestSelfIsNeverAddressable(t *testing.T) {
	api := newFakeAPI()
	api.mu.Lock()
	api.messages = append(api.messages, models.Message{ID: "self", SenderID: alice.ID, ReceiverID: alice.ID})
	api.mu.Unlock()

	s := NewSession(api, alice, WithPollInterval(time.Hour))
	defer s.Close()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	st := s.Snapshot()
	if len(st.AllUsers) != 2 {
		t.Fatalf("expected 2 addressable users, got %+v", st.AllUsers)
	}
	for _, u := range append(st.AllUsers, st.ConversationUsers...) {
		if u.ID == alice.ID {
			t.Fatalf("current user listed as a partner")
		}
	}
	if got := Addressable([]models.ChatUser{{ID: "u1"}}, "u1"); len(got) != 0 {
		t.Fatalf("expected nobody addressable, got %+v", got)
	}
}

func TestSendScenario(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, alice)
	ctx := context.Background()

	if err := s.SelectUser(ctx, &bob); err != nil {
		t.Fatalf("SelectUser: %v", err)
	}
	if api.convCalls[bob.ID] != 1 {
		t.Fatalf("expected a conversation fetch for %s", bob.ID)
	}
	if err := s.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	st := s.Snapshot()
	n := 0
	for _, m := range st.Messages {
		if m.Content == "hi" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected exactly one \"hi\", got %d in %+v", n, st.Messages)
	}
	if len(st.ConversationUsers) != 1 || st.ConversationUsers[0].ID != bob.ID {
		t.Fatalf("bob should be promoted to the conversation list, got %+v", st.ConversationUsers)
	}
}

func TestSendIgnoresBlankOrUnselected(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, alice)
	ctx := context.Background()

	s.SendMessage(ctx, "hello")
	s.SelectUser(ctx, &bob)
	s.SendMessage(ctx, "   \n")
	if len(api.messages) != 0 {
		t.Fatalf("expected nothing sent, got %+v", api.messages)
	}
}

func TestInitializeDegradesPerList(t *testing.T) {
	api := newFakeAPI()
	api.usersErr = errors.New("boom")
	api.receive(bob.ID, "hi")

	s := NewSession(api, alice, WithPollInterval(time.Hour))
	defer s.Close()
	if err := s.Initialize(context.Background()); err == nil {
		t.Fatalf("expected the chat users error to be reported")
	}
	st := s.Snapshot()
	if len(st.ConversationUsers) != 0 {
		t.Fatalf("expected empty conversation list")
	}
	if len(st.AllUsers) != 2 || st.UnreadCounts[bob.ID] != 1 {
		t.Fatalf("other lists should still load, got %+v", st)
	}
}

func TestMarkReadRecounts(t *testing.T) {
	api := newFakeAPI()
	m := api.receive(bob.ID, "hi")
	s := NewSession(api, alice)
	ctx := context.Background()
	s.Poll(ctx)
	if s.Snapshot().UnreadCounts[bob.ID] != 1 {
		t.Fatalf("expected one unread")
	}
	if err := s.MarkRead(ctx, m.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n := s.Snapshot().UnreadCounts[bob.ID]; n != 0 {
		t.Fatalf("expected no unread, got %d", n)
	}
}

func waitForPolls(t *testing.T, api *fakeAPI, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		api.mu.Lock()
		got := api.polls
		api.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d polls, got %d", n, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseStopsPolling(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, alice, WithPollInterval(10*time.Millisecond))
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	waitForPolls(t, api, 2)

	s.Close()
	s.Close()
	api.mu.Lock()
	after := api.polls
	api.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.polls != after {
		t.Fatalf("polling continued after Close: %d -> %d", after, api.polls)
	}
	if _, open := <-s.Changes(); open {
		// Drain a pending signal, then expect the closed channel.
		if _, open := <-s.Changes(); open {
			t.Fatalf("changes channel still open")
		}
	}
	if err := s.Initialize(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestLogoutStopsPolling(t *testing.T) {
	container := auth.New(session.NewMemoryStore())
	container.Login("t1", alice)

	api := newFakeAPI()
	s := NewSession(api, alice, WithPollInterval(10*time.Millisecond))
	container.OnLogout(func(auth.Reason) { s.Close() })
	s.Initialize(context.Background())
	waitForPolls(t, api, 1)

	container.Logout()
	api.mu.Lock()
	after := api.polls
	api.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.polls != after {
		t.Fatalf("polling continued after logout")
	}
}

func TestPollingStopsWhenCredentialRejected(t *testing.T) {
	f := newFakeAPI()
	f.pollErr = &api.Error{StatusCode: 401, Method: "GET", Path: "/chat/poll"}
	s := NewSession(f, alice, WithPollInterval(10*time.Millisecond))
	defer s.Close()
	s.Initialize(context.Background())
	waitForPolls(t, f, 1)

	time.Sleep(50 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.polls != 1 {
		t.Fatalf("expected polling to stop after a 401, got %d polls", f.polls)
	}
}
