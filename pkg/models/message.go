package models

// MessageStatus tracks outgoing delivery state. Incoming messages carry no
// status. The only allowed transition is queued -> delivered.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusDelivered MessageStatus = "delivered"
)

// StoredMessage is one record in a thread history. Records are append-only;
// the delivery status flip is the single permitted mutation.
type StoredMessage struct {
	ID string `json:"id"`
	// LocalID is the client-assigned idempotency key for optimistic sends.
	LocalID string `json:"localId,omitempty"`
	// ThreadKey is the pin value, optionally suffixed with ":"+shortKey for
	// lobby sub-threads.
	ThreadKey string `json:"threadKey"`
	From      string `json:"from"`
	Content   string `json:"content,omitempty"`
	// Kind is "" for plain text or "file" for relayed file metadata.
	Kind string `json:"kind,omitempty"`
	// File metadata; the payload itself is relayed, never persisted.
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	IsMine bool `json:"isMine"`
	// Timestamp is the local arrival instant (unix ms). Storage order, the
	// read watermark and inbox sorting all key off it.
	Timestamp int64 `json:"timestamp"`
	// SentAt is the instant the sender claims to have sent the message.
	// Display metadata only: peer clocks are not trusted for ordering or
	// read tracking.
	SentAt int64         `json:"sentAt,omitempty"`
	Status MessageStatus `json:"status,omitempty"`
	Read   bool          `json:"read,omitempty"`
	// PubKeyHex is the short sender key for lobby sub-thread records.
	PubKeyHex string `json:"pubKeyHex,omitempty"`
	// Enc marks content sealed by at-rest encryption. Only ever true in
	// the persisted form; loaded records carry plaintext.
	Enc bool `json:"enc,omitempty"`
}

// ThreadSummary is one row of the requests inbox: a distinct sender seen
// under a lobby pin, with its running counters.
type ThreadSummary struct {
	PinValue  string         `json:"pinValue"`
	ShortKey  string         `json:"shortKey"`
	ThreadKey string         `json:"threadKey"`
	Count     int            `json:"count"`
	Unread    int            `json:"unread"`
	Latest    *StoredMessage `json:"latest,omitempty"`
}

// InboxEntry is the per-pin summary row returned by inbox queries.
type InboxEntry struct {
	Pin          Pin            `json:"pin"`
	MessageCount int            `json:"messageCount"`
	Unread       int            `json:"unread"`
	Latest       *StoredMessage `json:"latest,omitempty"`
}
