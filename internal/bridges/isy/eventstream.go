package isy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event stream constants.
const (
	// eventSubprotocol is the websocket subprotocol the controller requires.
	eventSubprotocol = "ISYSUB"

	// eventOrigin is the Origin header the controller expects from subscribers.
	eventOrigin = "com.universal-devices.websockets.isy"

	defaultHandshakeTimeout = 10 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 1 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 30 * time.Second

	// maxEventSize caps a single websocket frame.
	maxEventSize = 1 << 20
)

// EventStream subscribes to the controller's websocket event stream.
//
// Every text frame is one XML <Event> fragment. Run hands each frame to the
// handler unchanged; routing is the caller's concern (see StatusEvent).
//
// Thread Safety: Run must be called at most once at a time. IsConnected and
// Stats are safe for concurrent use.
type EventStream struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration

	logger Logger

	connected  atomic.Bool
	frames     atomic.Uint64
	reconnects atomic.Uint64
}

// EventStreamStats is a snapshot of event stream counters.
type EventStreamStats struct {
	Connected  bool
	Frames     uint64
	Reconnects uint64
}

// NewEventStream creates an event stream for the controller behind client.
// Credentials and TLS settings are shared with the REST client.
func NewEventStream(client *Client, logger Logger) *EventStream {
	if logger == nil {
		logger = noopLogger{}
	}

	header := http.Header{}
	header.Set("Origin", eventOrigin)
	if user, pass := client.Credentials(); user != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	}

	return &EventStream{
		url:    client.EventStreamURL(),
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			Subprotocols:     []string{eventSubprotocol},
			TLSClientConfig:  client.TLSConfig(),
		},
		minBackoff: defaultReconnectInterval,
		maxBackoff: maxReconnectInterval,
		logger:     logger,
	}
}

// Run connects and delivers frames to handler until ctx is cancelled.
//
// On connection loss it reconnects with exponential backoff, starting at one
// second and capped at thirty. The backoff resets after a session that
// delivered at least one frame.
//
// Returns:
//   - error: ctx.Err() once the context ends
func (s *EventStream) Run(ctx context.Context, handler func(data []byte)) error {
	backoff := s.minBackoff
	first := true

	for {
		if !first {
			s.reconnects.Add(1)
		}
		first = false

		delivered, err := s.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			backoff = s.minBackoff
		}

		s.logger.Warn("event stream disconnected, will reconnect",
			"error", err,
			"retry_in", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// session runs one websocket connection. It reports whether any frame was
// delivered before the connection ended.
func (s *EventStream) session(ctx context.Context, handler func(data []byte)) (bool, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	conn.SetReadLimit(maxEventSize)

	s.connected.Store(true)
	defer s.connected.Store(false)
	s.logger.Info("event stream connected", "url", s.url)

	// Unblock ReadMessage when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	delivered := false
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return delivered, ErrStreamClosed
			}
			return delivered, fmt.Errorf("%w: %w", ErrStreamClosed, err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.frames.Add(1)
		delivered = true
		handler(data)
	}
}

// IsConnected reports whether a websocket session is currently open.
func (s *EventStream) IsConnected() bool {
	return s.connected.Load()
}

// Stats returns the event stream counters.
func (s *EventStream) Stats() EventStreamStats {
	return EventStreamStats{
		Connected:  s.connected.Load(),
		Frames:     s.frames.Load(),
		Reconnects: s.reconnects.Load(),
	}
}
