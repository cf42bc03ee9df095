package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/an-dube/draftpad/internal/auth"
	"github.com/an-dube/draftpad/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier is the connection gate: it validates the identity
// token presented at handshake time.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Client is one live real-time connection together with its attached
// identity and channel membership.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Current document channel, empty until the first join. Guarded by
	// hub.mu.
	doc string

	// Attached at admission, immutable afterwards
	identity auth.Identity

	connID  string
	limiter *ratelimit.Limiter
}

// ServeWs authenticates and upgrades a real-time connection. Rejected
// connections never reach the hub.
func ServeWs(hub *Hub, gate TokenVerifier, w http.ResponseWriter, r *http.Request) {
	identity, err := gate.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 512),
		identity: identity,
		connID:   uuid.New().String(),
		limiter:  ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// bearerToken pulls the identity token from the Authorization header
// or, for browser websocket clients that cannot set headers, the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", c.connID, err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("Rate limit exceeded for client %s", c.connID)
			continue
		}

		var event Envelope
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("Invalid event from client %s: %v", c.connID, err)
			continue
		}

		switch event.Type {
		case EventJoinDocument:
			if event.DocumentID == "" {
				c.sendEvent(Envelope{Type: EventError, Error: "missing document_id"})
				continue
			}
			c.hub.join <- joinRequest{client: c, docID: event.DocumentID}

		case EventDocumentUpdate:
			c.hub.broadcast <- &Update{Content: event.Content, Sender: c}

		default:
			log.Printf("Unknown event type %q from client %s", event.Type, c.connID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues an event for this session, dropping it if the
// session's outbound buffer is full.
func (c *Client) sendEvent(event Envelope) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode event for %s: %v", c.connID, err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
