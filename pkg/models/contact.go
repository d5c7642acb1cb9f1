package models

// Contact is a named bidirectional peer: their number plus the pin they
// gave us. Contacts are created explicitly (chat.start) or materialized by
// lobby migration when we first reply to an anonymous sender.
type Contact struct {
	ID          string `json:"id"`
	TheirNumber string `json:"theirNumber"`
	TheirPin    string `json:"theirPin"`
	Label       string `json:"label,omitempty"`
	// PeerPublicKey is the transport public key observed for this contact,
	// hex encoded. Used to re-identify the peer across pin rotations.
	PeerPublicKey string `json:"peerPublicKey,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// ContactEntry is the per-contact summary row for contact list queries.
type ContactEntry struct {
	Contact      Contact        `json:"contact"`
	MessageCount int            `json:"messageCount"`
	Unread       int            `json:"unread"`
	Latest       *StoredMessage `json:"latest,omitempty"`
}
