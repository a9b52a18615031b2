package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/undercity-games/presence-server/internal/proto"
	"github.com/undercity-games/presence-server/internal/store"
)

// fakeSocket records every payload the hub enqueues.
type fakeSocket struct {
	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
	pingErr   error
}

var _ Socket = (*fakeSocket)(nil)

func (s *fakeSocket) Send(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.sent = append(s.sent, buf)
	return true
}

func (s *fakeSocket) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *fakeSocket) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeCode = code
}

func (s *fakeSocket) setPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *fakeSocket) isClosed() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeCode
}

func (s *fakeSocket) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// eventsOfType decodes the recorded payloads and keeps those matching
// the event type.
func (s *fakeSocket) eventsOfType(eventType string) []*proto.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*proto.Event
	for _, payload := range s.sent {
		var ev proto.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		if ev.Type == eventType {
			events = append(events, &ev)
		}
	}
	return events
}

// mustEvent returns the first recorded event of the given type, polling
// briefly for deliveries riding on a goroutine.
func mustEvent(t *testing.T, s *fakeSocket, eventType string) *proto.Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := s.eventsOfType(eventType); len(events) > 0 {
			return events[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected event %q not received", eventType)
	return nil
}

func mustNoEvent(t *testing.T, s *fakeSocket, eventType string) {
	t.Helper()
	if events := s.eventsOfType(eventType); len(events) > 0 {
		t.Fatalf("unexpected event %q: %+v", eventType, events[0])
	}
}

// eventData re-decodes an event payload as a generic object.
func eventData(t *testing.T, ev *proto.Event) map[string]any {
	t.Helper()
	data, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("event data is %T, want object", ev.Data)
	}
	return data
}

func dataString(t *testing.T, ev *proto.Event, key string) string {
	t.Helper()
	v, ok := eventData(t, ev)[key].(string)
	if !ok {
		t.Fatalf("data[%q] is not a string: %+v", key, ev.Data)
	}
	return v
}

func dataInt(t *testing.T, ev *proto.Event, key string) int {
	t.Helper()
	v, ok := eventData(t, ev)[key].(float64)
	if !ok {
		t.Fatalf("data[%q] is not a number: %+v", key, ev.Data)
	}
	return int(v)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeChats is an in-memory ChatStore with failure injection.
type fakeChats struct {
	saveErr   error
	saved     []*store.ChatMessage
	history   map[string][]*store.ChatMessage
	lastLimit int
}

var _ store.ChatStore = (*fakeChats)(nil)

func (f *fakeChats) SaveMessage(ctx context.Context, userID, channel, text string) (*store.ChatMessage, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	msg := &store.ChatMessage{
		ID:        fmt.Sprintf("msg-%d", len(f.saved)+1),
		Message:   text,
		CreatedAt: time.Now().UnixMilli(),
		Channel:   channel,
		Author:    store.ChatAuthor{ID: userID, Username: "name-" + userID},
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeChats) RecentMessages(ctx context.Context, channel string, limit int) ([]*store.ChatMessage, error) {
	f.lastLimit = limit
	return f.history[channel], nil
}

// fakeDirectory resolves players from a fixed map.
type fakeDirectory struct {
	players map[string]*store.Player
	fail    map[string]error
}

var _ store.PlayerDirectory = (*fakeDirectory)(nil)

func (f *fakeDirectory) GetPlayerInfo(ctx context.Context, userID string) (*store.Player, error) {
	if err := f.fail[userID]; err != nil {
		return nil, err
	}
	p, ok := f.players[userID]
	if !ok {
		return nil, store.ErrPlayerNotFound
	}
	return p, nil
}

// testHub bundles a hub with its fakes.
type testHub struct {
	*Hub
	chats *fakeChats
	dir   *fakeDirectory
}

func newTestHub() *testHub {
	chats := &fakeChats{history: make(map[string][]*store.ChatMessage)}
	dir := &fakeDirectory{players: make(map[string]*store.Player), fail: make(map[string]error)}
	return &testHub{
		Hub:   NewHub(HubOptions{ChatStore: chats, Directory: dir}),
		chats: chats,
		dir:   dir,
	}
}

// connect registers the player on a fresh fake socket and seeds the
// directory with their record.
func (h *testHub) connect(p *store.Player, friends ...string) (*Conn, *fakeSocket) {
	sock := &fakeSocket{}
	h.dir.players[p.ID] = p
	return h.Connect(sock, p, friends), sock
}

func player(id, district string) *store.Player {
	return &store.Player{ID: id, Username: "name-" + id, Level: 10, DistrictID: district}
}

func crewPlayer(id, district, crewID string) *store.Player {
	p := player(id, district)
	p.CrewID = crewID
	p.CrewTag = "TAG"
	return p
}
