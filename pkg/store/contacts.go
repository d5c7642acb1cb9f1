package store

import (
	"encoding/json"
	"sort"
	"sync"

	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	"zerozero/pkg/utils"
	"zerozero/pkg/validation"
)

// Contacts is the saved-peer book: remote numbers the local user talks
// to, with the pin the remote side handed out and the peer public key
// learned on first connect.
type Contacts struct {
	s  *Store
	mu sync.RWMutex
}

func NewContacts(s *Store) *Contacts {
	return &Contacts{s: s}
}

// Create saves a contact after validating the remote address pair.
func (c *Contacts) Create(theirNumber, theirPin, label string) (models.Contact, error) {
	if err := validation.Number(theirNumber); err != nil {
		return models.Contact{}, err
	}
	if err := validation.PinValue(theirPin); err != nil {
		return models.Contact{}, err
	}
	contact := models.Contact{
		ID:          utils.GenID("contact"),
		TheirNumber: theirNumber,
		TheirPin:    theirPin,
		Label:       validation.Label(label),
		CreatedAt:   nowMs(),
	}
	b, err := json.Marshal(contact)
	if err != nil {
		return models.Contact{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.s.set(contactKey(contact.ID), b); err != nil {
		return models.Contact{}, err
	}
	logger.Info("contact_created", "id", contact.ID, "number", theirNumber)
	return contact, nil
}

// LoadAll returns every contact, oldest first.
func (c *Contacts) LoadAll() ([]models.Contact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []models.Contact{}
	err := c.s.scanPrefix(contactKeyPrefix, func(_ string, val []byte) error {
		var contact models.Contact
		if err := json.Unmarshal(val, &contact); err != nil {
			logger.Warn("corrupt_contact_record", "error", err)
			return nil
		}
		out = append(out, contact)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// FindByID returns the contact or ErrNotFound.
func (c *Contacts) FindByID(id string) (models.Contact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok, err := c.s.get(contactKey(id))
	if err != nil {
		return models.Contact{}, err
	}
	if !ok {
		return models.Contact{}, ErrNotFound
	}
	var contact models.Contact
	if err := json.Unmarshal(v, &contact); err != nil {
		return models.Contact{}, err
	}
	return contact, nil
}

// FindByPublicKey locates the contact bound to a peer key, used to map
// inbound connections back to the book.
func (c *Contacts) FindByPublicKey(pubKeyHex string) (models.Contact, error) {
	all, err := c.LoadAll()
	if err != nil {
		return models.Contact{}, err
	}
	for _, contact := range all {
		if contact.PeerPublicKey != "" && contact.PeerPublicKey == pubKeyHex {
			return contact, nil
		}
	}
	return models.Contact{}, ErrNotFound
}

func (c *Contacts) update(id string, fn func(*models.Contact) error) (models.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok, err := c.s.get(contactKey(id))
	if err != nil {
		return models.Contact{}, err
	}
	if !ok {
		return models.Contact{}, ErrNotFound
	}
	var contact models.Contact
	if err := json.Unmarshal(v, &contact); err != nil {
		return models.Contact{}, err
	}
	if err := fn(&contact); err != nil {
		return models.Contact{}, err
	}
	b, err := json.Marshal(contact)
	if err != nil {
		return models.Contact{}, err
	}
	if err := c.s.set(contactKey(id), b); err != nil {
		return models.Contact{}, err
	}
	return contact, nil
}

// UpdatePin re-keys the contact after the remote side rotated or
// migrated its pin.
func (c *Contacts) UpdatePin(id, newPin string) (models.Contact, error) {
	if err := validation.PinValue(newPin); err != nil {
		return models.Contact{}, err
	}
	return c.update(id, func(contact *models.Contact) error {
		contact.TheirPin = newPin
		return nil
	})
}

// UpdateLabel renames the contact.
func (c *Contacts) UpdateLabel(id, label string) (models.Contact, error) {
	return c.update(id, func(contact *models.Contact) error {
		contact.Label = validation.Label(label)
		return nil
	})
}

// UpdatePublicKey pins the peer identity learned on first connect.
func (c *Contacts) UpdatePublicKey(id, pubKeyHex string) (models.Contact, error) {
	return c.update(id, func(contact *models.Contact) error {
		contact.PeerPublicKey = pubKeyHex
		return nil
	})
}

// Remove deletes the contact. Unknown ids are a no-op.
func (c *Contacts) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.delete(contactKey(id))
}
