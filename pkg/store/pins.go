package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	pinpkg "zerozero/pkg/pin"
	"zerozero/pkg/validation"
)

// Registry errors surfaced to callers.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicatePin = errors.New("an active pin already holds this value")
)

// Pins is the pin registry. All pins live in the store; a small in-memory
// index (id -> pin) is kept in sync with every write so reads never
// re-parse the keyspace. Expiry is enforced at read time by the
// active-set queries, not by a background sweep.
type Pins struct {
	s *Store

	mu    sync.RWMutex
	byID  map[string]models.Pin
	order []string // creation order, for stable listings
}

// NewPins builds the registry, loading the existing pin table.
func NewPins(s *Store) (*Pins, error) {
	p := &Pins{s: s, byID: map[string]models.Pin{}}
	err := s.scanPrefix(pinKeyPrefix, func(_ string, val []byte) error {
		var pin models.Pin
		if err := json.Unmarshal(val, &pin); err != nil {
			return fmt.Errorf("corrupt pin record: %w", err)
		}
		p.byID[pin.ID] = pin
		p.order = append(p.order, pin.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pins) persist(pin models.Pin) error {
	b, err := json.Marshal(pin)
	if err != nil {
		return err
	}
	return p.s.set(pinKey(pin.ID), b)
}

// CreateParams carries the caller-validated attributes for a new pin.
type CreateParams struct {
	Value     string
	Label     string
	Type      models.PinType
	Expiry    string
	ExpiresAt int64 // unix ms; 0 = never
}

// Create mints a new active pin. The value must satisfy the hex grammar
// and must not collide with any currently active pin's value.
func (p *Pins) Create(params CreateParams) (models.Pin, error) {
	if err := validation.PinValue(params.Value); err != nil {
		return models.Pin{}, err
	}
	typ := params.Type
	if typ != models.PinLobby {
		typ = models.PinDirect
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := nowMs()
	for _, existing := range p.byID {
		if existing.Value == params.Value && existing.Live(now) {
			return models.Pin{}, fmt.Errorf("%w: %s", ErrDuplicatePin, pinpkg.Hash(params.Value)[:12])
		}
	}
	pin := models.Pin{
		ID:        "pin-" + pinpkg.Generate(12),
		Value:     params.Value,
		Label:     validation.Label(params.Label),
		Type:      typ,
		IsActive:  true,
		Expiry:    params.Expiry,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: now,
	}
	if err := p.persist(pin); err != nil {
		return models.Pin{}, err
	}
	p.byID[pin.ID] = pin
	p.order = append(p.order, pin.ID)
	logger.Info("pin_created", "id", pin.ID, "type", pin.Type, "hash", pinpkg.Hash(pin.Value)[:12])
	return pin, nil
}

// GetActive returns every pin that is active and unexpired, in creation
// order.
func (p *Pins) GetActive() []models.Pin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := nowMs()
	out := []models.Pin{}
	for _, id := range p.order {
		if pin, ok := p.byID[id]; ok && pin.Live(now) {
			out = append(out, pin)
		}
	}
	return out
}

// All returns every pin ever created, active or not.
func (p *Pins) All() []models.Pin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Pin, 0, len(p.order))
	for _, id := range p.order {
		if pin, ok := p.byID[id]; ok {
			out = append(out, pin)
		}
	}
	return out
}

// CountLive returns how many pins are live right now and refreshes the
// exported gauge. Retention calls this on every sweep.
func (p *Pins) CountLive() int {
	n := len(p.GetActive())
	pinsActive.Set(float64(n))
	return n
}

// FindByID returns the pin or ErrNotFound.
func (p *Pins) FindByID(id string) (models.Pin, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pin, ok := p.byID[id]
	if !ok {
		return models.Pin{}, ErrNotFound
	}
	return pin, nil
}

// FindByValue returns the pin holding value, preferring a live one. A
// revoked or expired pin is still findable here for history views.
func (p *Pins) FindByValue(value string) (models.Pin, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := nowMs()
	var fallback *models.Pin
	for _, id := range p.order {
		pin, ok := p.byID[id]
		if !ok || pin.Value != value {
			continue
		}
		if pin.Live(now) {
			return pin, nil
		}
		cp := pin
		fallback = &cp
	}
	if fallback != nil {
		return *fallback, nil
	}
	return models.Pin{}, ErrNotFound
}

// Rotate replaces the pin's value in place; id and history are unchanged.
// The caller is responsible for propagating a pin_migrate to connected
// peers after a successful rotate.
func (p *Pins) Rotate(id, newValue string) (models.Pin, error) {
	if err := validation.PinValue(newValue); err != nil {
		return models.Pin{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, ok := p.byID[id]
	if !ok {
		return models.Pin{}, ErrNotFound
	}
	now := nowMs()
	for otherID, other := range p.byID {
		if otherID != id && other.Value == newValue && other.Live(now) {
			return models.Pin{}, fmt.Errorf("%w: %s", ErrDuplicatePin, pinpkg.Hash(newValue)[:12])
		}
	}
	pin.Value = newValue
	pin.RotatedAt = now
	if err := p.persist(pin); err != nil {
		return models.Pin{}, err
	}
	p.byID[id] = pin
	logger.Info("pin_rotated", "id", id, "hash", pinpkg.Hash(newValue)[:12])
	return pin, nil
}

// Revoke deactivates the pin. Idempotent; revoking an unknown id reports
// false without error.
func (p *Pins) Revoke(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, ok := p.byID[id]
	if !ok {
		return false
	}
	if !pin.IsActive {
		return true
	}
	pin.IsActive = false
	pin.RevokedAt = nowMs()
	if err := p.persist(pin); err != nil {
		logger.Error("pin_revoke_persist_failed", "id", id, "error", err)
		return false
	}
	p.byID[id] = pin
	logger.Info("pin_revoked", "id", id)
	return true
}

// SetLabel updates the pin's display label.
func (p *Pins) SetLabel(id, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, ok := p.byID[id]
	if !ok {
		return ErrNotFound
	}
	pin.Label = validation.Label(label)
	if err := p.persist(pin); err != nil {
		return err
	}
	p.byID[id] = pin
	return nil
}
