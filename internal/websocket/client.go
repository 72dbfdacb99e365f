package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ai-docchat/internal/dto"
	"ai-docchat/internal/entity"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/store"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Asker resolves a question against a view's session.
type Asker interface {
	Ask(ctx context.Context, view *entity.ChatView, text string) (store.Snapshot, error)
}

// Updates streams serialized snapshots of a view.
type Updates interface {
	Subscribe(ctx context.Context, viewID string) (<-chan []byte, error)
}

// Client is a middleman between the websocket connection and the view's session.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	ViewID string

	// Buffered channel of outbound frames.
	Send chan []byte

	view   *entity.ChatView
	asker  Asker
	logger logger.ILogger

	mu           sync.Mutex
	closed       bool
	lastRevision uint64
	sentAny      bool
}

// readPump reads intents from the connection until it closes.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Hub", "Unexpected close", map[string]interface{}{"view_id": c.ViewID, "error": err.Error()})
			}
			return
		}

		var intent dto.SocketIntent
		if err := json.Unmarshal(data, &intent); err != nil {
			c.reject("malformed message")
			continue
		}

		switch intent.Type {
		case dto.IntentAsk:
			go c.ask(intent.Question)
		default:
			c.reject("unknown intent type")
		}
	}
}

// ask is not bound to this connection; discarding the view cancels the request.
func (c *Client) ask(question string) {
	_, err := c.asker.Ask(context.Background(), c.view, question)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrEmptyQuestion), errors.Is(err, store.ErrQuestionPending):
		c.reject(err.Error())
	case errors.Is(err, store.ErrSessionClosed):
	default:
		c.logger.Error("Hub", "Ask failed", map[string]interface{}{"view_id": c.ViewID, "error": err})
	}
}

// writePump pumps frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forward relays published snapshots, skipping any that are older than one already sent.
func (c *Client) forward(stream <-chan []byte) {
	for payload := range stream {
		c.pushSnapshot(payload)
	}
}

func (c *Client) pushSnapshot(payload []byte) {
	var head struct {
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return
	}

	c.mu.Lock()
	if c.sentAny && head.Revision <= c.lastRevision {
		c.mu.Unlock()
		return
	}
	c.lastRevision = head.Revision
	c.sentAny = true
	c.mu.Unlock()

	c.queue(dto.SocketFrame{Type: dto.FrameSnapshot, Data: json.RawMessage(payload)})
}

func (c *Client) reject(reason string) {
	c.queue(dto.SocketFrame{Type: dto.FrameRejected, Error: reason})
}

func (c *Client) queue(frame dto.SocketFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.logger.Warn("Hub", "Client send buffer full, dropping frame", map[string]interface{}{"view_id": c.ViewID})
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
