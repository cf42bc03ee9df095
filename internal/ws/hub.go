package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Saver receives edits for deferred persistence and flushes them when
// a session leaves.
type Saver interface {
	Schedule(id, content string)
	Flush(id string) error
}

// Hub tracks which document channel each session belongs to and fans
// edits out to the other members of that channel.
type Hub struct {
	// Sessions grouped by document id
	rooms map[string]map[*Client]bool

	// All connected sessions, including those in no channel yet
	clients map[*Client]bool

	// Channel switch requests from clients
	join chan joinRequest

	// Inbound edits from clients
	broadcast chan *Update

	// Register requests from new connections
	register chan *Client

	// Unregister requests from departing connections
	unregister chan *Client

	saver Saver

	mu sync.RWMutex
}

type joinRequest struct {
	client *Client
	docID  string
}

// Update is one edit received from a session.
type Update struct {
	Content string
	Sender  *Client
}

func NewHub(saver Saver) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		join:       make(chan joinRequest),
		broadcast:  make(chan *Update),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		saver:      saver,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			log.Printf("Client %s connected (%s)", client.connID, client.identity.Username)

		case req := <-h.join:
			h.handleJoin(req.client, req.docID)

		case update := <-h.broadcast:
			h.handleUpdate(update)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.removeFromRoom(client)
				close(client.send)
			}
			h.mu.Unlock()

			log.Printf("Client %s disconnected", client.connID)
		}
	}
}

// handleJoin moves a session to a document channel, leaving any
// previous channel first. Rejoining the current channel is an
// idempotent leave and rejoin. The document id is only a broadcast
// grouping key; it is not checked against the directory.
func (h *Hub) handleJoin(client *Client, docID string) {
	h.mu.Lock()
	h.removeFromRoom(client)

	if _, ok := h.rooms[docID]; !ok {
		h.rooms[docID] = make(map[*Client]bool)
	}
	h.rooms[docID][client] = true
	client.doc = docID
	memberCount := len(h.rooms[docID])
	h.mu.Unlock()

	log.Printf("Client %s joined document %s (members: %d)", client.connID, docID, memberCount)

	client.sendEvent(Envelope{
		Type: EventMessage,
		Text: "User " + client.identity.Username + " has joined!",
	})
}

// handleUpdate fans an edit out to the sender's channel peers and
// hands it to the persistence controller. A session with no current
// channel gets an error event back; the update goes nowhere.
func (h *Hub) handleUpdate(update *Update) {
	sender := update.Sender

	h.mu.RLock()
	docID := sender.doc
	if docID == "" {
		h.mu.RUnlock()
		sender.sendEvent(Envelope{
			Type:  EventError,
			Error: "not a member of any document",
		})
		return
	}

	data, err := json.Marshal(Envelope{
		Type:       EventDocumentUpdate,
		DocumentID: docID,
		Content:    update.Content,
		Author:     sender.identity.Username,
	})
	if err != nil {
		h.mu.RUnlock()
		log.Printf("Failed to encode update for document %s: %v", docID, err)
		return
	}

	for client := range h.rooms[docID] {
		if client == sender {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer, drop the message rather than block the hub
		}
	}
	h.mu.RUnlock()

	h.saver.Schedule(docID, update.Content)
}

// disconnect runs on the connection's own goroutine so a slow flush
// cannot stall the hub loop. The flush happens before membership
// removal, and cleanup proceeds even when it fails.
func (h *Hub) disconnect(client *Client) {
	h.mu.RLock()
	docID := client.doc
	h.mu.RUnlock()

	if docID != "" {
		if err := h.saver.Flush(docID); err != nil {
			log.Printf("Failed to flush document %s on disconnect: %v", docID, err)
		}
	}

	h.unregister <- client
}

// removeFromRoom drops a session's current channel membership, closing
// the room when it empties. Callers hold h.mu.
func (h *Hub) removeFromRoom(client *Client) {
	if client.doc == "" {
		return
	}
	if members, ok := h.rooms[client.doc]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, client.doc)
			log.Printf("Document channel %s closed (empty)", client.doc)
		}
	}
	client.doc = ""
}

// GetRoomCount returns the number of document channels with members.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientCount returns the number of connected sessions.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetActiveRooms returns member counts keyed by document id.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	active := make(map[string]int, len(h.rooms))
	for docID, members := range h.rooms {
		active[docID] = len(members)
	}
	return active
}
