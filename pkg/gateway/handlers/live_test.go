package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/gateway/lifecycle"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	snap     live.Snapshot
	errs     map[string]error
	calls    []string
	subs     []chan live.Event
	subReady chan struct{}
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{errs: map[string]error{}, subReady: make(chan struct{}, 8)}
}

func (f *fakeOrchestrator) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func (f *fakeOrchestrator) Start(context.Context) error         { return f.record("start") }
func (f *fakeOrchestrator) Stop(context.Context) error          { return f.record("stop") }
func (f *fakeOrchestrator) ArchiveActive(context.Context) error { return f.record("archive") }

func (f *fakeOrchestrator) Snapshot(context.Context) (live.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.errs["snapshot"]
}

func (f *fakeOrchestrator) Subscribe() (<-chan live.Event, func()) {
	ch := make(chan live.Event, 16)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	f.subReady <- struct{}{}
	return ch, func() {}
}

func (f *fakeOrchestrator) publish(ev live.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

func (f *fakeOrchestrator) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type liveHarness struct {
	server    *httptest.Server
	orch      *fakeOrchestrator
	lifecycle *lifecycle.Lifecycle
}

func (h *liveHarness) close() { h.server.Close() }

func newLiveTestServer(t *testing.T, orch *fakeOrchestrator) (*liveHarness, string) {
	t.Helper()
	lc := &lifecycle.Lifecycle{}
	handler := LiveHandler{
		Orchestrator: orch,
		Config: LiveConfig{
			PingInterval: time.Second,
			WriteTimeout: time.Second,
		},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Lifecycle: lc,
	}
	srv := httptest.NewServer(handler)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live"
	return &liveHarness{server: srv, orch: orch, lifecycle: lc}, url
}

func mustDialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	return conn
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return out
}

// readUntilType skips frames until one with the given type arrives.
func readUntilType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 16; i++ {
		msg := mustReadJSON(t, conn, 2*time.Second)
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %q frame received", typ)
	return nil
}

func TestLiveHandler_SendsSnapshotFirst(t *testing.T) {
	orch := newFakeOrchestrator()
	active := types.Note{ID: "n2", Kind: types.NoteQA, Question: "¿Qué hora es?", Content: "Las tres."}
	orch.snap = live.Snapshot{
		State:            live.StateRunning,
		Transcript:       "Hola mundo ",
		Archived:         []types.Note{{ID: "n1", Kind: types.NoteTip, Content: "Beber agua"}},
		Active:           &active,
		RemainingSeconds: 512,
	}
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	defer conn.Close()

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "snapshot" {
		t.Fatalf("type=%v", msg["type"])
	}
	if msg["state"] != "running" {
		t.Fatalf("state=%v", msg["state"])
	}
	if msg["transcript"] != "Hola mundo " {
		t.Fatalf("transcript=%v", msg["transcript"])
	}
	if msg["remaining_seconds"] != float64(512) {
		t.Fatalf("remaining_seconds=%v", msg["remaining_seconds"])
	}
	archived, _ := msg["archived"].([]any)
	if len(archived) != 1 {
		t.Fatalf("archived=%v", msg["archived"])
	}
	activeMsg, _ := msg["active"].(map[string]any)
	if activeMsg["type"] != "qa" || activeMsg["question"] != "¿Qué hora es?" {
		t.Fatalf("active=%v", msg["active"])
	}
}

func TestLiveHandler_ForwardsEvents(t *testing.T) {
	orch := newFakeOrchestrator()
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	defer conn.Close()
	<-orch.subReady
	_ = mustReadJSON(t, conn, 2*time.Second)

	orch.publish(&live.StateChangedEvent{From: live.StateIdle, To: live.StateStarting})
	orch.publish(&live.TimerTickEvent{RemainingSeconds: 42})
	orch.publish(&live.SessionErrorEvent{Type: string(core.ErrDeviceUnavailable), Message: "no microphone"})

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "state.changed" || msg["from"] != "idle" || msg["to"] != "starting" {
		t.Fatalf("state frame=%v", msg)
	}
	msg = mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "timer.tick" || msg["remaining_seconds"] != float64(42) {
		t.Fatalf("tick frame=%v", msg)
	}
	msg = mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "session.error" || msg["error_type"] != "device_unavailable" || msg["message"] != "no microphone" {
		t.Fatalf("error frame=%v", msg)
	}
}

func TestLiveHandler_CommandsAreAcked(t *testing.T) {
	orch := newFakeOrchestrator()
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	defer conn.Close()
	_ = mustReadJSON(t, conn, 2*time.Second)

	for _, cmd := range []string{"start", "archive", "stop"} {
		mustWriteJSON(t, conn, map[string]any{"type": cmd, "id": "c-" + cmd})
		msg := readUntilType(t, conn, "ack")
		if msg["command"] != cmd || msg["id"] != "c-"+cmd {
			t.Fatalf("ack=%v, want command %q", msg, cmd)
		}
	}

	got := orch.callNames()
	if strings.Join(got, ",") != "start,archive,stop" {
		t.Fatalf("calls=%v", got)
	}
}

func TestLiveHandler_CommandErrorFrame(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.errs["start"] = core.NewInvalidStateError("a session is already active", "session_active")
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	defer conn.Close()
	_ = mustReadJSON(t, conn, 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "start", "id": "c1"})
	msg := readUntilType(t, conn, "error")
	if msg["command"] != "start" || msg["id"] != "c1" {
		t.Fatalf("error frame=%v", msg)
	}
	errObj, _ := msg["error"].(map[string]any)
	if errObj["type"] != "invalid_state" || errObj["code"] != "session_active" {
		t.Fatalf("error=%v", msg["error"])
	}
}

func TestLiveHandler_UnknownCommand(t *testing.T) {
	orch := newFakeOrchestrator()
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	defer conn.Close()
	_ = mustReadJSON(t, conn, 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "rewind"})
	msg := readUntilType(t, conn, "error")
	errObj, _ := msg["error"].(map[string]any)
	if errObj["type"] != "invalid_request_error" || errObj["param"] != "type" {
		t.Fatalf("error=%v", msg["error"])
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntilType(t, conn, "error")
	errObj, _ = msg["error"].(map[string]any)
	if errObj["message"] != "invalid command frame" {
		t.Fatalf("error=%v", msg["error"])
	}
	if len(orch.callNames()) != 0 {
		t.Fatalf("unexpected orchestrator calls: %v", orch.callNames())
	}
}

func TestLiveHandler_TracksConnections(t *testing.T) {
	orch := newFakeOrchestrator()
	h, url := newLiveTestServer(t, orch)
	defer h.close()

	conn := mustDialWS(t, url)
	_ = mustReadJSON(t, conn, 2*time.Second)
	if got := h.lifecycle.OpenConns(); got != 1 {
		t.Fatalf("OpenConns=%d, want 1", got)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.lifecycle.Wait(ctx); err != nil {
		t.Fatalf("connection not released: %v", err)
	}
}

func TestLiveHandler_DrainingRejectsUpgrade(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := LiveHandler{Orchestrator: newFakeOrchestrator(), Lifecycle: lc}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/live", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"code":"draining"`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestLiveHandler_ForeignOriginRejected(t *testing.T) {
	h := LiveHandler{Orchestrator: newFakeOrchestrator(), Config: LiveConfig{AllowedOrigins: []string{"app://renderer"}}}

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8787/v1/live", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestLiveHandler_MethodNotAllowed(t *testing.T) {
	h := LiveHandler{Orchestrator: newFakeOrchestrator()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/live", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestEncodeEvent_AddsType(t *testing.T) {
	rec := types.SessionRecord{ID: "rec-1", Title: "Sesión 19/10/2026 10:00"}
	data, err := EncodeEvent(&live.SessionFinalizedEvent{Record: rec, Reason: live.ReasonTimeout})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["type"] != "session.finalized" {
		t.Fatalf("type=%v", msg["type"])
	}
	if msg["reason"] != live.ReasonTimeout {
		t.Fatalf("reason=%v", msg["reason"])
	}
	recMsg, _ := msg["record"].(map[string]any)
	if recMsg["id"] != "rec-1" {
		t.Fatalf("record=%v", msg["record"])
	}
}
