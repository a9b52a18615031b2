package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/undercity-games/presence-server/internal/auth"
	"github.com/undercity-games/presence-server/internal/config"
	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/metrics"
	"github.com/undercity-games/presence-server/internal/proto"
	"github.com/undercity-games/presence-server/internal/store"
	"github.com/undercity-games/presence-server/internal/store/dircache"
	"github.com/undercity-games/presence-server/internal/store/sqlite"
)

const testServiceKey = "test-service-key"

// testEnv bundles a running server with the pieces tests poke at.
type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	jwt   *auth.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}

	keyHash, err := auth.HashServiceKey(testServiceKey)
	if err != nil {
		t.Fatalf("hash service key: %v", err)
	}

	cfg := config.Default()
	cfg.Push.ServiceKeys = []string{keyHash}

	dir := dircache.New(st, 128, time.Minute)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := core.NewHub(core.HubOptions{ChatStore: st, Directory: dir, Metrics: m})

	srv := NewServer(ServerOptions{
		Hub:       hub,
		Verifier:  auth.NewVerifier(jwtCfg),
		Directory: dir,
		Friends:   st,
		Metrics:   m,
		Gatherer:  reg,
	}, cfg)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, jwt: jwtCfg}
}

// seed inserts the player and returns a valid session token for them.
func (e *testEnv) seed(t *testing.T, p *store.Player) string {
	t.Helper()
	if err := e.store.UpsertPlayer(context.Background(), p); err != nil {
		t.Fatalf("seed player %s: %v", p.ID, err)
	}
	return e.token(t, p.ID, p.Username)
}

func (e *testEnv) token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := auth.GenerateToken(e.jwt, userID, username)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (e *testEnv) wsURL(token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

// dial opens a websocket session. The server accepts the upgrade before
// checking credentials, so rejections surface on the first read.
func (e *testEnv) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, f proto.Frame) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, f); err != nil {
		t.Fatalf("write %s frame: %v", f.Type, err)
	}
}

// readEvent reads frames until an event of the wanted type arrives.
func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, eventType string) *proto.Event {
	t.Helper()
	for {
		var ev proto.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event %q: %v", eventType, err)
		}
		if ev.Type == eventType {
			return &ev
		}
	}
}

// wantClose reads until the server closes the socket and checks the
// close code.
func wantClose(ctx context.Context, t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != websocket.StatusCode(code) {
			t.Fatalf("close status = %d, want %d (err: %v)", got, code, err)
		}
		return
	}
}

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

// internalReq sends a JSON request to the internal API. An empty key
// omits the Authorization header.
func (e *testEnv) internalReq(t *testing.T, method, path string, body any, key string) *stdhttp.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *stdhttp.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func testPlayer(id, district string) *store.Player {
	return &store.Player{ID: id, Username: "name-" + id, Level: 12, DistrictID: district}
}
