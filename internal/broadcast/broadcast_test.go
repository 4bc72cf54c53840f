package broadcast

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestIsUpgradeRequest(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/activity", nil)
	if IsUpgradeRequest(plain) {
		t.Error("plain GET request reported as upgrade")
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/activity", nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	if !IsUpgradeRequest(upgrade) {
		t.Error("websocket upgrade request not recognized")
	}
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	b := New()
	srv := httptest.NewServer(b)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/activity"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscriber before publishing.
	time.Sleep(50 * time.Millisecond)

	b.Publish(Event{Method: "GET", Path: "/bucket/key", Status: 200, DurationMs: 5})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading published event: %v", err)
	}
	if len(msg) == 0 {
		t.Error("expected non-empty event payload")
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Method: "GET", Path: "/x", Status: 200})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
