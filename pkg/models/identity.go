package models

// Identity is the daemon's local identity: one stable public number.
type Identity struct {
	Number    string `json:"number"`
	CreatedAt int64  `json:"createdAt"`
	// RenewedAt is set when the number was regenerated; all pins active at
	// that moment were revoked.
	RenewedAt int64 `json:"renewedAt,omitempty"`
}
