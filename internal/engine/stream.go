package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wisegate/wisegate/pkg/log"
)

// TokenHandler receives every answer token event read off the stream.
type TokenHandler func(ctx context.Context, reference, token string)

// StreamConfig configures the upstream event subscription.
type StreamConfig struct {
	URL        string
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// streamFrame is the envelope of every event on the engine stream. The event
// set is closed; answer_token is the only variant today.
type streamFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type answerTokenData struct {
	Reference string `json:"reference"`
	Token     string `json:"token"`
}

// StreamClient maintains the single long-lived subscription to the engine's
// event channel. It is constructed at startup and runs for the process
// lifetime; while disconnected, tokens are simply not delivered and the
// synchronous HTTP path remains authoritative.
type StreamClient struct {
	cfg     StreamConfig
	handler TokenHandler
	dialer  *websocket.Dialer
	doneCh  chan struct{}
}

func NewStreamClient(cfg StreamConfig, handler TokenHandler) *StreamClient {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &StreamClient{
		cfg:     cfg,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		doneCh:  make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run exits.
func (s *StreamClient) Done() <-chan struct{} { return s.doneCh }

// Run dials the engine stream and consumes events until ctx is cancelled,
// reconnecting with exponential backoff after any failure.
func (s *StreamClient) Run(ctx context.Context) {
	defer close(s.doneCh)
	l := log.L()

	backoff := s.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = s.cfg.MinBackoff
		}
		l.Warn().Err(err).Dur("backoff", backoff).Msg("engine stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if !connected {
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
		}
	}
}

// runSubscription reports whether a connection was established, and the error
// that ended it.
func (s *StreamClient) runSubscription(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, err
	}

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
			conn.Close()
		}
	}()

	l := log.L()
	l.Info().Str("url", s.cfg.URL).Msg("engine stream connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		s.handleFrame(ctx, message)
	}
}

// handleFrame decodes one event at the transport boundary. Malformed frames
// and unknown events are logged and dropped; they must never tear down the
// stream or reach a client.
func (s *StreamClient) handleFrame(ctx context.Context, message []byte) {
	l := log.Ctx(ctx)

	var frame streamFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		l.Warn().Err(err).Msg("engine stream: invalid frame")
		return
	}

	switch frame.Event {
	case "answer_token":
		var data answerTokenData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			l.Warn().Err(err).Msg("engine stream: invalid answer_token payload")
			return
		}
		s.handler(ctx, data.Reference, data.Token)
	default:
		l.Debug().Str("event", frame.Event).Msg("engine stream: ignoring unknown event")
	}
}
