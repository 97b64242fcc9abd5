package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type receivedToken struct {
	reference string
	token     string
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// streamServer upgrades one connection at a time and writes the given frames.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestStreamClientDispatchesAnswerTokensInOrder(t *testing.T) {
	srv := streamServer(t, []string{
		`{"event":"answer_token","data":{"reference":"u1:req42","token":"Hel"}}`,
		`{"event":"answer_token","data":{"reference":"u1:req42","token":"lo"}}`,
		`{"event":"answer_token","data":{"reference":"u2:other","token":"!"}}`,
	})
	defer srv.Close()

	tokens := make(chan receivedToken, 8)
	client := NewStreamClient(StreamConfig{URL: wsURL(srv)}, func(_ context.Context, reference, token string) {
		tokens <- receivedToken{reference, token}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	expect := []receivedToken{
		{"u1:req42", "Hel"},
		{"u1:req42", "lo"},
		{"u2:other", "!"},
	}
	for _, want := range expect {
		select {
		case got := <-tokens:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for token %v", want)
		}
	}

	cancel()
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream client did not shut down")
	}
}

func TestStreamClientDropsMalformedFrames(t *testing.T) {
	srv := streamServer(t, []string{
		`not json at all`,
		`{"event":"presence_update","data":{"whatever":true}}`,
		`{"event":"answer_token","data":"not-an-object"}`,
		`{"event":"answer_token","data":{"reference":"u1:req1","token":"ok"}}`,
	})
	defer srv.Close()

	tokens := make(chan receivedToken, 8)
	client := NewStreamClient(StreamConfig{URL: wsURL(srv)}, func(_ context.Context, reference, token string) {
		tokens <- receivedToken{reference, token}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	// Only the well-formed frame makes it through.
	select {
	case got := <-tokens:
		require.Equal(t, receivedToken{"u1:req1", "ok"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid token")
	}
	select {
	case extra := <-tokens:
		t.Fatalf("unexpected extra token: %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamClientReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connections := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections <- struct{}{}
		// Drop every connection immediately to force a reconnect.
		conn.Close()
	}))
	defer srv.Close()

	client := NewStreamClient(StreamConfig{
		URL:        wsURL(srv),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, func(context.Context, string, string) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-connections:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected connection attempt %d", i+1)
		}
	}

	cancel()
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream client did not shut down")
	}
}
