package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/anon-relay/internal/matchmaker"
	"github.com/oggyb/anon-relay/internal/realtime"
)

type fakeSession struct {
	id     string
	user   int64
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func (s *fakeSession) SessionID() string { return s.id }
func (s *fakeSession) UserID() int64     { return s.user }
func (s *fakeSession) Start()            {}

func (s *fakeSession) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("socket gone")
	}
	s.frames = append(s.frames, p)
	return nil
}

func (s *fakeSession) Close(int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSession) decoded(t *testing.T) []realtime.Delivery {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Delivery, 0, len(s.frames))
	for _, f := range s.frames {
		var d realtime.Delivery
		require.NoError(t, json.Unmarshal(f, &d))
		out = append(out, d)
	}
	return out
}

func TestHubDeliversToSession(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub()
	s := &fakeSession{id: "a", user: 1}
	hub.Attach(s)
	require.True(t, hub.Online(1))
	assert.Equal(t, 1, hub.OnlineCount())

	require.NoError(t, hub.Send(ctx, 1, matchmaker.Reply{Text: "hello", Keyboard: matchmaker.MainKeyboard}))
	require.NoError(t, hub.Forward(ctx, 1, matchmaker.Content{Kind: matchmaker.KindPhoto, FileID: "x"}))

	got := s.decoded(t)
	require.Len(t, got, 2)
	assert.Equal(t, realtime.TypeMessage, got[0].Type)
	assert.Equal(t, "hello", got[0].Reply.Text)
	assert.Equal(t, realtime.TypeForward, got[1].Type)
	assert.Equal(t, "x", got[1].Content.FileID)
}

func TestHubOfflineUserIsUnreachable(t *testing.T) {
	hub := realtime.NewHub()
	err := hub.Forward(context.Background(), 2, matchmaker.Content{Kind: matchmaker.KindText, Text: "hi"})
	assert.ErrorIs(t, err, matchmaker.ErrPartnerUnreachable)
}

func TestHubFailingSessionIsDetached(t *testing.T) {
	hub := realtime.NewHub()
	hub.Attach(&fakeSession{id: "a", user: 1, fail: true})

	err := hub.Forward(context.Background(), 1, matchmaker.Content{Kind: matchmaker.KindText, Text: "hi"})
	assert.ErrorIs(t, err, matchmaker.ErrPartnerUnreachable)
	assert.False(t, hub.Online(1))
}

func TestHubReplacesPreviousSession(t *testing.T) {
	hub := realtime.NewHub()
	old := &fakeSession{id: "old", user: 1}
	cur := &fakeSession{id: "new", user: 1}
	hub.Attach(old)
	hub.Attach(cur)
	assert.Equal(t, 1, old.closed)

	// detaching the stale session must not drop the new one
	hub.Detach(old)
	assert.True(t, hub.Online(1))

	require.NoError(t, hub.Send(context.Background(), 1, matchmaker.Reply{Text: "x"}))
	assert.Len(t, cur.decoded(t), 1)
	assert.Empty(t, old.decoded(t))
}

func TestHubFallsBackToBridge(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub()
	b := hub.Subscribe(1)

	require.NoError(t, hub.Send(ctx, 5, matchmaker.Reply{Text: "via bridge"}))
	d := <-b.C()
	assert.Equal(t, int64(5), d.UserID)
	assert.Equal(t, "via bridge", d.Reply.Text)

	// buffer of one: second undrained delivery fails
	require.NoError(t, hub.Send(ctx, 5, matchmaker.Reply{Text: "1"}))
	err := hub.Send(ctx, 5, matchmaker.Reply{Text: "2"})
	assert.ErrorIs(t, err, matchmaker.ErrPartnerUnreachable)

	hub.Unsubscribe(b)
	err = hub.Send(ctx, 5, matchmaker.Reply{Text: "3"})
	assert.ErrorIs(t, err, matchmaker.ErrPartnerUnreachable)

	_, open := <-b.C()
	assert.True(t, open, "buffered delivery is still readable")
	_, open = <-b.C()
	assert.False(t, open)
}

func TestHubKeepsUserOnOneBridge(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub()
	bridges := []*realtime.Bridge{hub.Subscribe(8), hub.Subscribe(8)}

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Send(ctx, 6, matchmaker.Reply{Text: "six"}))
		require.NoError(t, hub.Forward(ctx, 7, matchmaker.Content{Kind: matchmaker.KindText, Text: "seven"}))
	}

	seen := map[int64]map[int]int{}
	for i, b := range bridges {
		for len(b.C()) > 0 {
			d := <-b.C()
			if seen[d.UserID] == nil {
				seen[d.UserID] = map[int]int{}
			}
			seen[d.UserID][i]++
		}
	}
	require.Len(t, seen, 2)
	for user, perBridge := range seen {
		assert.Len(t, perBridge, 1, "user %d split across bridges", user)
	}
	assert.NotEqual(t, seen[6], seen[7], "users spread over both bridges")
}

func TestHubCloseDropsEverything(t *testing.T) {
	hub := realtime.NewHub()
	s := &fakeSession{id: "a", user: 1}
	hub.Attach(s)
	b := hub.Subscribe(4)

	hub.Close()
	assert.Equal(t, 1, s.closed)
	assert.False(t, hub.Online(1))
	_, open := <-b.C()
	assert.False(t, open)
}
