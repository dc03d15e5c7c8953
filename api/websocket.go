package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/xiaoyuanzhu-com/claude-deck/claude"
	"github.com/xiaoyuanzhu-com/claude-deck/log"
)

const wsWriteTimeout = 10 * time.Second

// EventsWebSocket streams every registry event to the client as JSON
func (h *Handlers) EventsWebSocket(c *gin.Context) {
	log.MarkHijacked(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warn().Err(err).Msg("events websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan claude.Event, 256)
	unsubscribe := h.registry.Subscribe(func(ev claude.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	// Drain client frames so pings and close frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := writeJSON(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

// terminalClientMessage is what the terminal websocket accepts from clients
type terminalClientMessage struct {
	Type string `json:"type"` // "input" or "resize"
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// terminalServerMessage is what the terminal websocket sends to clients
type terminalServerMessage struct {
	Type string `json:"type"` // "replay" or "data"
	Data string `json:"data"`
}

// TerminalWebSocket attaches a client to one session's terminal: retained
// output is replayed on connect, live output is streamed after, and client
// frames carry input and resizes back to the PTY.
func (h *Handlers) TerminalWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	sess, err := h.registry.GetSession(sessionID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	log.MarkHijacked(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("terminal websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before the replay so no output falls between the two.
	output := make(chan string, 256)
	unsubscribe := h.registry.Subscribe(func(ev claude.Event) {
		if ev.Type == claude.EventData && ev.SessionID == sessionID {
			select {
			case output <- ev.Data:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := writeJSON(ctx, conn, terminalServerMessage{Type: "replay", Data: sess.BufferContents()}); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg terminalClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Debug().Err(err).Msg("dropping malformed terminal frame")
				continue
			}
			switch msg.Type {
			case "input":
				h.registry.Write(sessionID, msg.Data)
			case "resize":
				h.registry.Resize(sessionID, msg.Cols, msg.Rows)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-output:
			if err := writeJSON(ctx, conn, terminalServerMessage{Type: "data", Data: chunk}); err != nil {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
