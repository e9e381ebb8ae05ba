package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced at the HTTP layer
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Commands are the control operations a UI may invoke over the socket.
// They mirror the HTTP control routes so a panel can stay on one pipe.
type Commands struct {
	StartRecording func(name string) error
	StopRecording  func() error
	RetryPreview   func(inputID string)
}

// Client represents a single connected UI websocket.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	cmds   Commands
	logger *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// token is carried in the query string since browsers cannot set headers
// on websocket dials.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) error, cmds Commands) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		if err := validate(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			cmds:   cmds,
			logger: logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "start_recording":
			if c.cmds.StartRecording != nil {
				var payload struct {
					Name string `json:"name"`
				}
				_ = json.Unmarshal(msg.Data, &payload)
				if err := c.cmds.StartRecording(payload.Name); err != nil {
					c.sendError(err.Error())
				}
			}
		case "stop_recording":
			if c.cmds.StopRecording != nil {
				if err := c.cmds.StopRecording(); err != nil {
					c.sendError(err.Error())
				}
			}
		case "retry_preview":
			if c.cmds.RetryPreview != nil {
				var payload struct {
					InputID string `json:"input_id"`
				}
				if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.InputID != "" {
					c.cmds.RetryPreview(payload.InputID)
				}
			}
		default:
			// ignore
		}
	}
}

func (c *Client) sendError(msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	select {
	case c.send <- WSMessage{Event: "error", Data: data}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
