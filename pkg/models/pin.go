package models

// PinType distinguishes one-to-one pins from publicly shared lobby pins.
type PinType string

const (
	// PinDirect maps to exactly one counterpart and one thread.
	PinDirect PinType = "direct"
	// PinLobby is publicly shareable; inbound traffic is held as
	// per-sender sub-threads until the owner replies.
	PinLobby PinType = "lobby"
)

// Pin is a short, shareable, rotatable secret that opens a channel to the
// local number's owner. Value is lowercase hex, 4-16 chars.
type Pin struct {
	ID       string  `json:"id"`
	Value    string  `json:"value"`
	Label    string  `json:"label,omitempty"`
	Type     PinType `json:"type"`
	IsActive bool    `json:"isActive"`
	// Expiry is the human-readable expiry the pin was created with
	// ("none", "12h", "7d", "2w").
	Expiry string `json:"expiry,omitempty"`
	// ExpiresAt is an absolute unix-millisecond deadline; 0 means never.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
	CreatedAt int64 `json:"createdAt"`
	// RotatedAt records the last rotation time (ms); 0 if never rotated.
	RotatedAt int64 `json:"rotatedAt,omitempty"`
	// RevokedAt records when the pin was revoked (ms); kept for audit.
	RevokedAt int64 `json:"revokedAt,omitempty"`
}

// Expired reports whether the pin's deadline has passed at the given
// unix-millisecond instant. A zero ExpiresAt never expires.
func (p Pin) Expired(nowMs int64) bool {
	return p.ExpiresAt != 0 && p.ExpiresAt <= nowMs
}

// Live reports whether the pin should appear in active-set queries.
func (p Pin) Live(nowMs int64) bool {
	return p.IsActive && !p.Expired(nowMs)
}
