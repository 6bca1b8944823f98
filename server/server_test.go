package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/dragonsnek/game"
	"github.com/brensch/dragonsnek/rules"
	"github.com/brensch/dragonsnek/store"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Settings.GridSize == 0 {
		opts.Settings = rules.DefaultSettings
		opts.Settings.TickRate = 10 * time.Millisecond
		opts.Settings.SpecialSpawnChance = 0
	}
	if opts.Seed == 0 {
		opts.Seed = 5
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Healthz(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	var body map[string]string
	if code := getJSON(t, ts.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if body["status"] != "healthy" {
		t.Fatalf("body=%v", body)
	}
}

func TestServer_WebsocketGame(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	conn := dial(t, ts)
	defer conn.Close()

	if err := conn.WriteJSON(ClientMessage{Type: MsgStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	score := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MsgScore })
	if score.Score == nil || *score.Score != 0 {
		t.Fatalf("first score frame=%+v", score)
	}
	first := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MsgState })
	if !first.State.Playing || first.State.GameID == "" {
		t.Fatalf("first state=%+v", first.State)
	}

	if err := conn.WriteJSON(ClientMessage{Type: MsgInput, Command: game.ArrowUp}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	turned := readUntil(t, conn, func(m ServerMessage) bool {
		return m.Type == MsgState && m.State.Facing == game.Up
	})
	if turned.State.GameID != first.State.GameID || turned.State.Head.Z >= 0 {
		t.Fatalf("turned state=%+v", turned.State)
	}

	sessions := srv.Sessions()
	if len(sessions) != 1 || sessions[0].GameID != first.State.GameID || !sessions[0].Playing {
		t.Fatalf("sessions=%+v", sessions)
	}
	var listed struct {
		Sessions []SessionStatus `json:"sessions"`
	}
	if code := getJSON(t, ts.URL+"/api/sessions", &listed); code != http.StatusOK || len(listed.Sessions) != 1 {
		t.Fatalf("api sessions code=%d body=%+v", code, listed)
	}

	if err := conn.WriteJSON(ClientMessage{Type: "teleport"}); err != nil {
		t.Fatalf("write bad type: %v", err)
	}
	bad := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MsgError })
	if !strings.Contains(bad.Error, "teleport") {
		t.Fatalf("error frame=%+v", bad)
	}

	// Restarting mid-game begins a fresh game.
	if err := conn.WriteJSON(ClientMessage{Type: MsgStart}); err != nil {
		t.Fatalf("write restart: %v", err)
	}
	restarted := readUntil(t, conn, func(m ServerMessage) bool {
		return m.Type == MsgState && m.State.GameID != first.State.GameID
	})
	if restarted.State.Tick != 0 || restarted.State.Score != 0 || restarted.State.Facing != game.Right {
		t.Fatalf("restarted state=%+v", restarted.State)
	}
}

func TestServer_CloseEndsSessionsAndArchives(t *testing.T) {
	dir := t.TempDir()
	srv, ts := newTestServer(t, Options{DataDir: dir})
	conn := dial(t, ts)
	defer conn.Close()

	if err := conn.WriteJSON(ClientMessage{Type: MsgStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MsgState && m.State.Tick >= 2 })

	srv.Close()
	if n := len(srv.Sessions()); n != 0 {
		t.Fatalf("sessions after close=%d", n)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if len(files) != 1 {
		t.Fatalf("archive files=%v", files)
	}
	rows, err := store.ReadGameParquet(files[0])
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(rows) < 3 || rows[0].Source != "ws" || rows[0].Tick != 0 {
		t.Fatalf("rows=%d first=%+v", len(rows), rows[0])
	}

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get ws after close: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ws after close status=%d", resp.StatusCode)
	}
}

func TestServer_Best(t *testing.T) {
	results, err := store.OpenResultLog(filepath.Join(t.TempDir(), "results.log"))
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	defer results.Close()

	_, ts := newTestServer(t, Options{Results: results})

	var empty BestResponse
	if code := getJSON(t, ts.URL+"/api/best", &empty); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if empty.Best != nil || empty.Games != 0 || len(empty.Top) != 0 {
		t.Fatalf("empty=%+v", empty)
	}

	for i, score := range []int{30, 90, 60} {
		r := store.Result{GameID: string(rune('a' + i)), Score: score, Ticks: int32(score), EndedAt: time.UnixMilli(int64(i))}
		if err := results.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	var best BestResponse
	if code := getJSON(t, ts.URL+"/api/best?limit=2", &best); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if best.Best == nil || best.Best.GameID != "b" || best.Best.Score != 90 || best.Games != 3 {
		t.Fatalf("best=%+v", best)
	}
	if len(best.Top) != 2 || best.Top[1].GameID != "c" {
		t.Fatalf("top=%+v", best.Top)
	}
}

func TestServer_DisabledEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	for _, path := range []string{"/api/best", "/api/games", "/api/games/abc"} {
		if code := getJSON(t, ts.URL+path, nil); code != http.StatusNotFound {
			t.Fatalf("%s status=%d want 404", path, code)
		}
	}
}
