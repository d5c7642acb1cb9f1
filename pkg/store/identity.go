package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"zerozero/pkg/logger"
	"zerozero/pkg/models"
)

// GenerateNumber mints a fresh address in the 0x0-NNN-NNNN-NNNN space.
func GenerateNumber() string {
	seg := func(max int64) int64 {
		n, err := rand.Int(rand.Reader, big.NewInt(max))
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		return n.Int64()
	}
	return fmt.Sprintf("0x0-%03d-%04d-%04d", seg(1000), seg(10000), seg(10000))
}

// LoadIdentity returns the persisted local identity, or ok=false when
// the node has never been initialized.
func (s *Store) LoadIdentity() (models.Identity, bool, error) {
	v, ok, err := s.get(identityKey)
	if err != nil || !ok {
		return models.Identity{}, false, err
	}
	var id models.Identity
	if err := json.Unmarshal(v, &id); err != nil {
		return models.Identity{}, false, fmt.Errorf("corrupt identity record: %w", err)
	}
	return id, true, nil
}

// SaveIdentity persists the local identity.
func (s *Store) SaveIdentity(id models.Identity) error {
	b, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := s.set(identityKey, b); err != nil {
		return err
	}
	logger.Info("identity_saved", "number", id.Number)
	return nil
}
