package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"docshub/api/internal/session"
)

const watchBuffer = 32

var ErrNoToken = errors.New("docshub: not logged in")

// Watch opens the change-event stream of the logged-in user. The returned
// channel is closed when ctx ends or the server goes away.
func (c *Client) Watch(ctx context.Context) (<-chan session.Event, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNoToken
	}
	endpoint, err := c.eventsURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}

	events := make(chan session.Event, watchBuffer)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var event session.Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) eventsURL() (string, error) {
	parsed, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return "", fmt.Errorf("events url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	return parsed.String(), nil
}
