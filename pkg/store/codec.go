package store

import (
	"encoding/json"

	"zerozero/pkg/models"
	"zerozero/pkg/security"
)

// encodeMessage seals the content field when at-rest encryption is
// enabled. Callers keep the plaintext copy they passed in.
func encodeMessage(m models.StoredMessage) ([]byte, error) {
	if security.EncryptionEnabled() && !m.Enc {
		sealed, err := security.EncryptString(m.Content)
		if err != nil {
			return nil, err
		}
		m.Content = sealed
		m.Enc = true
	}
	return json.Marshal(m)
}

// decodeMessage parses a stored record, unsealing content when needed.
func decodeMessage(b []byte) (models.StoredMessage, error) {
	var m models.StoredMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	if m.Enc {
		plain, err := security.DecryptString(m.Content)
		if err != nil {
			return m, err
		}
		m.Content = plain
		m.Enc = false
	}
	return m, nil
}
