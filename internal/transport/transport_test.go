package transport

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sketchpad/internal/sample"
	"sketchpad/internal/session"

	"github.com/gorilla/websocket"
)

type stubTransport struct {
	sent   []session.VisualState
	err    error
	closed bool
}

func (s *stubTransport) Send(state session.VisualState) error {
	s.sent = append(s.sent, state)
	return s.err
}

func (s *stubTransport) Close() error {
	s.closed = true
	return s.err
}

func TestMultiFanOut(t *testing.T) {
	failing := errors.New("unreachable")
	a, b := &stubTransport{}, &stubTransport{err: failing}
	m := Multi{a, b}

	state := session.VisualState{Frame: 7}
	if err := m.Send(state); !errors.Is(err, failing) {
		t.Errorf("Send() error = %v, want %v", err, failing)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("frames delivered: %d and %d, want 1 each", len(a.sent), len(b.sent))
	}
	if err := m.Close(); !errors.Is(err, failing) {
		t.Errorf("Close() error = %v, want %v", err, failing)
	}
	if !a.closed || !b.closed {
		t.Error("Close() did not reach every transport")
	}
	if err := (Multi{a}).Send(state); err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport(3)
	for i := range 5 {
		if err := lt.Send(session.VisualState{Frame: uint64(i)}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if got := lt.Sent(); got != 5 {
		t.Errorf("Sent() = %d, want 5", got)
	}
}

func dialState(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport("", 0)
	defer wst.Close()
	conn := dialState(t, wst)

	state := session.VisualState{
		State:    session.Recording,
		Features: sample.FeatureVector{Loudness: 0.75},
		Loudness: 0.75,
		Labels:   sample.LabelVector{Y1: 0.2, Y2: 0.3, Y3: 0.4, Y4: 0.5, Shape: 2},
		Source:   session.SourceLive,
		Frame:    42,
	}
	if err := wst.Send(state); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var got struct {
		State    string             `json:"state"`
		Loudness float64            `json:"loudness"`
		Labels   sample.LabelVector `json:"labels"`
		Source   string             `json:"source"`
		Frame    uint64             `json:"frame"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.State != "recording" || got.Source != "live" || got.Frame != 42 {
		t.Errorf("received %+v", got)
	}
	if got.Labels != state.Labels || got.Loudness != 0.75 {
		t.Errorf("labels %+v loudness %g, want %+v 0.75", got.Labels, got.Loudness, state.Labels)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	wst := NewWebSocketTransport("", time.Hour)
	defer wst.Close()
	conn := dialState(t, wst)

	for i := range 3 {
		if err := wst.Send(session.VisualState{Frame: uint64(i + 1)}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	var got struct {
		Frame uint64 `json:"frame"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Frame != 1 {
		t.Errorf("first frame = %d, want 1", got.Frame)
	}

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("frames inside the interval were not dropped")
	}
}

func TestWebSocketSendAfterClose(t *testing.T) {
	wst := NewWebSocketTransport("", 0)
	if err := wst.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := wst.Send(session.VisualState{}); err == nil {
		t.Error("Send() after Close() error = nil")
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
