package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/agent-driver/internal/events"
)

// dialTimeout bounds the WebSocket handshake with the agent.
const dialTimeout = 10 * time.Second

// Subscription is one live attachment to the agent event feed. Next blocks
// until an event frame arrives; Close tears the connection down.
type Subscription struct {
	conn    *websocket.Conn
	release func() bool
}

// Subscribe opens the agent's event feed. The returned subscription is
// closed automatically when ctx is cancelled, which unblocks any in-flight
// Next call.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	wsURL := "ws" + c.baseURL[len("http"):] + "/event"

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe to event feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("subscribe to event feed: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})

	return &Subscription{conn: conn, release: stop}, nil
}

// Next returns the next decoded event from the feed. Frames with unknown
// tags are skipped. It returns ctx.Err() when the context has been
// cancelled, and the underlying read error when the stream fails.
func (s *Subscription) Next(ctx context.Context) (events.Event, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read event frame: %w", err)
		}

		ev, err := events.Decode(data)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}
}

// Close releases the subscription's connection and cancellation hook.
func (s *Subscription) Close() error {
	if s.release != nil {
		s.release()
	}
	err := s.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
