package websocket

import (
	"context"
	"encoding/json"

	"ai-docchat/internal/entity"
	"ai-docchat/internal/mapper"
	"ai-docchat/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one connection for a view until it closes.
func ServeWs(hub *Hub, conn *websocket.Conn, view *entity.ChatView, asker Asker, updates Updates, log logger.ILogger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		ViewID: view.ID,
		Send:   make(chan []byte, 256),
		view:   view,
		asker:  asker,
		logger: log,
	}

	stream, err := updates.Subscribe(ctx, view.ID)
	if err != nil {
		log.Error("Hub", "Failed to subscribe to session updates", map[string]interface{}{"view_id": view.ID, "error": err})
		conn.Close()
		return
	}

	if !hub.join(client) {
		conn.Close()
		return
	}

	// Current state first; later frames with an equal or older revision are skipped.
	initial, err := json.Marshal(mapper.NewChatMapper().SnapshotToResponse(view.ID, view.Session.Snapshot()))
	if err == nil {
		client.pushSnapshot(initial)
	}

	go client.writePump()
	go client.forward(stream)
	client.readPump()
}
