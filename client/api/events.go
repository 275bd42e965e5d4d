package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"adichat/backend/chat/models"

	"github.com/gorilla/websocket"
)

const pingInterval = 30 * time.Second

type frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

func (c *Client) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Subscribe streams chat lifecycle events to handle until ctx ends or the
// connection drops. It returns nil when ctx was cancelled.
func (c *Client) Subscribe(ctx context.Context, handle func(models.Event)) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				closeConn()
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(frame{Type: "ping"}); err != nil {
					closeConn()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "pong" {
			continue
		}
		var event models.Event
		if err := json.Unmarshal(f.Content, &event); err != nil {
			c.log.Warn("undecodable event", "type", f.Type, "error", err)
			continue
		}
		handle(event)
	}
}
