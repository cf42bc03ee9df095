package ws

// Event types carried on the real-time channel.
const (
	// Sent by a client to switch its document channel
	EventJoinDocument = "join-document"

	// Sent by a client with new content; rebroadcast to channel peers
	// with the author attached
	EventDocumentUpdate = "document-update"

	// Sent to a client when it joins a channel
	EventMessage = "message"

	// Sent to a client when its request cannot be honored
	EventError = "error"
)

// Envelope is the wire shape of every channel event. Fields not used
// by a given event type are omitted.
type Envelope struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Author     string `json:"author,omitempty"`
	Text       string `json:"text,omitempty"`
	Error      string `json:"error,omitempty"`
}
