package visualization

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*httptest.Server, *propagation.Session) {
	t.Helper()
	g, err := grammar.Compile(testDefinition)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cfg := propagation.DefaultConfig()
	cfg.StepDelay = time.Hour
	session := propagation.NewSession(g, cfg)
	t.Cleanup(session.Close)

	ts := httptest.NewServer(NewServer(session, opts...))
	t.Cleanup(ts.Close)
	return ts, session
}

func post(t *testing.T, url, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) propagation.Snapshot {
	t.Helper()
	var snap propagation.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func nodeValue(snap propagation.Snapshot, name string) (float64, bool) {
	for _, n := range snap.Nodes {
		if n.Name == name {
			return n.Value, true
		}
	}
	return 0, false
}

func TestServer_ServesHTML(t *testing.T) {
	ts, _ := newTestServer(t, WithTitle("Demo"))

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<title>Demo</title>") || !strings.Contains(string(body), `id="start"`) {
		t.Error("live page missing title or controls")
	}
}

func TestServer_Health(t *testing.T) {
	ts, session := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["session"] != session.ID() {
		t.Errorf("health = %v", body)
	}
}

func TestServer_StartStop(t *testing.T) {
	ts, _ := newTestServer(t)

	var started map[string]bool
	json.NewDecoder(post(t, ts.URL+"/api/start", "application/json", "{}").Body).Decode(&started)
	if !started["started"] {
		t.Errorf("first start = %v, want started", started)
	}

	json.NewDecoder(post(t, ts.URL+"/api/start", "application/json", "{}").Body).Decode(&started)
	if started["started"] {
		t.Error("second start should report already running")
	}

	var stopped map[string]bool
	json.NewDecoder(post(t, ts.URL+"/api/stop", "application/json", "{}").Body).Decode(&stopped)
	if !stopped["stopped"] {
		t.Errorf("stop = %v, want stopped", stopped)
	}
}

func TestServer_Perturb(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := post(t, ts.URL+"/api/perturb", "application/json", `{"node":"A","direction":"increase"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Node  string  `json:"node"`
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Value != 60 {
		t.Errorf("A after increase = %v, want 60", body.Value)
	}

	resp = post(t, ts.URL+"/api/perturb", "application/json", `{"node":"Z","direction":"increase"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown node status = %d, want 404", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/perturb", "application/json", `{"node":"A","direction":"sideways"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad direction status = %d, want 400", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/perturb", "application/json", `{"node":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_ValueAndReset(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := post(t, ts.URL+"/api/value", "application/json", `{"node":"B","value":75}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set value status = %d, want 204", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer resp.Body.Close()
	if v, _ := nodeValue(decodeSnapshot(t, resp), "B"); v != 75 {
		t.Errorf("B = %v, want 75", v)
	}

	snap := decodeSnapshot(t, post(t, ts.URL+"/api/reset", "application/json", "{}"))
	if v, _ := nodeValue(snap, "B"); v != 20.4 {
		t.Errorf("B after reset = %v, want 20.4", v)
	}
}

func TestServer_Amount(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp := post(t, ts.URL+"/api/amount", "application/json", `{"node":"A","amount":0}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero amount status = %d, want 400", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/amount", "application/json", `{"node":"A","amount":2}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("amount status = %d, want 204", resp.StatusCode)
	}

	var body struct {
		Value float64 `json:"value"`
	}
	json.NewDecoder(post(t, ts.URL+"/api/perturb", "application/json", `{"node":"A","direction":"-"}`).Body).Decode(&body)
	if body.Value != 48 {
		t.Errorf("A after decrease = %v, want 48", body.Value)
	}
}

func TestServer_Tuning(t *testing.T) {
	ts, _ := newTestServer(t)

	snap := decodeSnapshot(t, post(t, ts.URL+"/api/tuning", "application/json", `{"damping_factor":0.5,"step_delay_ms":250,"max_steps":10}`))
	if snap.DampingFactor != 0.5 || snap.StepDelayMs != 250 || snap.MaxSteps != 10 {
		t.Errorf("tuning = %v/%v/%v, want 0.5/250/10", snap.DampingFactor, snap.StepDelayMs, snap.MaxSteps)
	}

	for _, body := range []string{`{"damping_factor":1}`, `{"damping_factor":0}`, `{"step_delay_ms":-1}`, `{"unknown":1}`} {
		if resp := post(t, ts.URL+"/api/tuning", "application/json", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("tuning %s status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestServer_LoadGraph(t *testing.T) {
	reg := metrics.NewRegistry()
	ts, _ := newTestServer(t, WithMetrics(reg))

	snap := decodeSnapshot(t, post(t, ts.URL+"/api/graph", "text/plain", "X -> Y (0.3, -)\nX: 70"))
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Fatalf("loaded graph has %d nodes / %d edges, want 2 / 1", len(snap.Nodes), len(snap.Edges))
	}
	if v, _ := nodeValue(snap, "X"); v != 70 {
		t.Errorf("X = %v, want 70", v)
	}

	resp, err := http.Get(ts.URL + "/api/graph")
	if err != nil {
		t.Fatalf("GET /api/graph: %v", err)
	}
	defer resp.Body.Close()
	text, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(text), "X -> Y (0.3, -)") {
		t.Errorf("definition = %q", text)
	}

	if resp := post(t, ts.URL+"/api/graph", "text/plain", "   "); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty definition status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_Render(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		format      string
		contentType string
		status      int
	}{
		{"dot", "text/vnd.graphviz; charset=utf-8", http.StatusOK},
		{"json", "application/json", http.StatusOK},
		{"svg", "image/svg+xml", http.StatusOK},
		{"png", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/render/" + tt.format)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	ts, _ := newTestServer(t, WithRateLimit(0.001, 1))

	if resp := post(t, ts.URL+"/api/reset", "application/json", "{}"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", resp.StatusCode)
	}
	resp := post(t, ts.URL+"/api/reset", "application/json", "{}")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", resp.StatusCode)
	}

	// Reads are not limited.
	if r, err := http.Get(ts.URL + "/api/state"); err != nil || r.StatusCode != http.StatusOK {
		t.Errorf("GET /api/state should not be rate limited")
	} else {
		r.Body.Close()
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	ts, _ := newTestServer(t, WithMetrics(reg))

	post(t, ts.URL+"/api/perturb", "application/json", `{"node":"A","direction":"increase"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `path="/api/perturb"`) {
		t.Errorf("metrics missing request for /api/perturb route:\n%s", body)
	}
}

func TestServer_WebSocket(t *testing.T) {
	ts, session := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev propagation.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if ev.Type != propagation.EventState || ev.Snapshot == nil || ev.Session != session.ID() {
		t.Fatalf("initial event = %+v, want state event with snapshot", ev)
	}

	post(t, ts.URL+"/api/perturb", "application/json", `{"node":"C","direction":"decrease"}`)

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read perturb event: %v", err)
	}
	if ev.Type != propagation.EventPerturb || ev.Node != "C" {
		t.Errorf("event = %s/%s, want perturb/C", ev.Type, ev.Node)
	}
}

func TestServer_WebSocketClosesWithSession(t *testing.T) {
	ts, session := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev propagation.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read initial event: %v", err)
	}

	session.Close()

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after session close = %v, want going-away close", err)
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	g, err := grammar.Compile(testDefinition)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	session := propagation.NewSession(g, propagation.DefaultConfig())
	defer session.Close()
	srv := NewServer(session)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
