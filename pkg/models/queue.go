package models

// QueueItemType identifies the pending action a queue item represents.
type QueueItemType string

const (
	// QueuePinMessage is a message addressed to one of our own pins while
	// no peer connection was available.
	QueuePinMessage QueueItemType = "pin"
	// QueueContactMessage is a message addressed to a stored contact
	// (their number + pin) while the contact was unreachable.
	QueueContactMessage QueueItemType = "contact"
)

// QueueItem is one durable entry in the outbound queue. Items survive a
// daemon restart and are dropped once delivered or once ExpiresAt passes.
type QueueItem struct {
	ID   string        `json:"id"`
	Type QueueItemType `json:"type"`

	// PinID is set for QueuePinMessage items.
	PinID string `json:"pinId,omitempty"`
	// TheirNumber/Pin are set for QueueContactMessage items.
	TheirNumber string `json:"theirNumber,omitempty"`
	Pin         string `json:"pin,omitempty"`

	Content string `json:"content"`
	// LocalID carries the sender-side idempotency key so a retried
	// delivery never duplicates the stored message.
	LocalID   string `json:"localId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether the item is past its deadline at nowMs.
func (q QueueItem) Expired(nowMs int64) bool {
	return q.ExpiresAt != 0 && q.ExpiresAt <= nowMs
}
