package app

import (
	"context"
	"time"

	"zerozero/pkg/channel"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	"zerozero/pkg/protocol"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
	"zerozero/pkg/validation"
)

type pinSession struct {
	pinID  string
	value  string
	typ    models.PinType
	secret [channel.SecretSize]byte
	sess   transport.Session
}

type contactSession struct {
	contactID string
	secret    [channel.SecretSize]byte
	sess      transport.Session
}

func nowMs() int64 { return time.Now().UnixMilli() }

func (a *App) runCtx() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// joinPin opens the rendezvous for one of our pins: peers holding our
// number and this pin value land on the same topic. The transport only
// ever sees the hashed topic; the secret itself stays local and keys
// the payload sealing.
func (a *App) joinPin(pin models.Pin) error {
	secret := channel.Derive(a.Number(), pin.Value)
	h := &pinHandler{app: a, pinID: pin.ID, value: pin.Value, typ: pin.Type, secret: secret}
	sess, err := a.tr.Join(a.runCtx(), channel.Topic(secret), h)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.pinSessions[pin.ID] = &pinSession{pinID: pin.ID, value: pin.Value, typ: pin.Type, secret: secret, sess: sess}
	a.mu.Unlock()
	logger.Info("pin_joined", "id", pin.ID, "type", pin.Type)
	return nil
}

func (a *App) leavePin(pinID string) {
	a.mu.Lock()
	ps, ok := a.pinSessions[pinID]
	delete(a.pinSessions, pinID)
	a.mu.Unlock()
	if ok {
		_ = ps.sess.Leave()
		logger.Info("pin_left", "id", pinID)
	}
}

// joinContact opens the rendezvous against a saved peer's number+pin.
func (a *App) joinContact(c models.Contact) error {
	secret := channel.Derive(c.TheirNumber, c.TheirPin)
	h := &contactHandler{app: a, contactID: c.ID, secret: secret}
	sess, err := a.tr.Join(a.runCtx(), channel.Topic(secret), h)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.contactSessions[c.ID] = &contactSession{contactID: c.ID, secret: secret, sess: sess}
	a.mu.Unlock()
	logger.Info("contact_joined", "id", c.ID)
	return nil
}

func (a *App) leaveContact(contactID string) {
	a.mu.Lock()
	cs, ok := a.contactSessions[contactID]
	delete(a.contactSessions, contactID)
	a.mu.Unlock()
	if ok {
		_ = cs.sess.Leave()
	}
}

// pinLink finds the live link for (pinID, shortKey). An empty shortKey
// matches the first link, which is the direct-pin case.
func (a *App) pinLink(pinID, shortKey string) (transport.Link, bool) {
	a.mu.Lock()
	ps, ok := a.pinSessions[pinID]
	a.mu.Unlock()
	if !ok {
		return nil, false
	}
	for _, l := range ps.sess.Links() {
		if shortKey == "" || channel.ShortKey(l.RemoteKeyHex()) == shortKey {
			return l, true
		}
	}
	return nil, false
}

func (a *App) contactLink(contactID string) (transport.Link, bool) {
	a.mu.Lock()
	cs, ok := a.contactSessions[contactID]
	a.mu.Unlock()
	if !ok {
		return nil, false
	}
	links := cs.sess.Links()
	if len(links) == 0 {
		return nil, false
	}
	return links[0], true
}

// pinSecret returns the sealing key for a joined pin channel.
func (a *App) pinSecret(pinID string) ([channel.SecretSize]byte, bool) {
	a.mu.Lock()
	ps, ok := a.pinSessions[pinID]
	a.mu.Unlock()
	if !ok {
		return [channel.SecretSize]byte{}, false
	}
	return ps.secret, true
}

func (a *App) contactSecret(contactID string) ([channel.SecretSize]byte, bool) {
	a.mu.Lock()
	cs, ok := a.contactSessions[contactID]
	a.mu.Unlock()
	if !ok {
		return [channel.SecretSize]byte{}, false
	}
	return cs.secret, true
}

// pinHandler receives traffic on one of our own pins.
type pinHandler struct {
	app    *App
	pinID  string
	value  string
	typ    models.PinType
	secret [channel.SecretSize]byte
}

func (h *pinHandler) OnConnect(l transport.Link) {
	short := channel.ShortKey(l.RemoteKeyHex())
	if h.typ == models.PinLobby {
		h.app.bus.Publish(events.Event{Name: events.LobbyConn, Payload: map[string]string{
			"pinId": h.pinID, "shortKey": short,
		}})
	} else {
		h.app.bus.Publish(events.Event{Name: events.PeerStatus, Payload: map[string]interface{}{
			"pinId": h.pinID, "shortKey": short, "online": true,
		}})
	}
	h.app.flushPinQueue(h.pinID, h.value, h.secret, l)
}

func (h *pinHandler) OnDisconnect(l transport.Link) {
	short := channel.ShortKey(l.RemoteKeyHex())
	name := events.PeerStatus
	if h.typ == models.PinLobby {
		name = events.LobbyDisconn
	}
	h.app.bus.Publish(events.Event{Name: name, Payload: map[string]interface{}{
		"pinId": h.pinID, "shortKey": short, "online": false,
	}})
}

func (h *pinHandler) OnPayload(l transport.Link, b []byte) {
	plain, err := channel.Open(h.secret, b)
	if err != nil {
		logger.Warn("sealed_payload_rejected", "pinId", h.pinID, "error", err)
		return
	}
	env, ok := protocol.Decode(plain)
	if !ok {
		logger.Warn("envelope_rejected", "pinId", h.pinID)
		return
	}
	short := channel.ShortKey(l.RemoteKeyHex())
	pubKey := ""
	if h.typ == models.PinLobby {
		pubKey = l.RemoteKeyHex()
	}

	switch e := env.(type) {
	case protocol.Message:
		if err := validation.Content(e.Content); err != nil {
			logger.Warn("inbound_content_rejected", "pinId", h.pinID, "error", err)
			return
		}
		msg, err := h.app.Threads.Append(h.value, store.AppendParams{
			From:      short,
			Content:   e.Content,
			PubKeyHex: pubKey,
			SentAt:    e.Timestamp,
		})
		if err != nil {
			logger.Error("inbound_append_failed", "pinId", h.pinID, "error", err)
			return
		}
		if h.typ == models.PinLobby {
			h.app.bus.Publish(events.Event{Name: events.LobbyMessage, Payload: map[string]interface{}{
				"pinId": h.pinID, "shortKey": short, "message": msg,
			}})
		} else {
			h.app.bus.Publish(events.Event{Name: events.MsgReceived, Payload: map[string]interface{}{
				"pinId": h.pinID, "message": msg,
			}})
		}
		h.app.notifyWake()

	case protocol.File:
		msg, err := h.app.Threads.Append(h.value, store.AppendParams{
			From:      short,
			Kind:      "file",
			Filename:  validation.Filename(e.Filename),
			MimeType:  e.MimeType,
			PubKeyHex: pubKey,
			SentAt:    e.Timestamp,
		})
		if err != nil {
			logger.Error("inbound_file_append_failed", "pinId", h.pinID, "error", err)
			return
		}
		// file bytes are relayed to frontends, never persisted
		h.app.bus.Publish(events.Event{Name: events.FileReceived, Payload: map[string]interface{}{
			"pinId": h.pinID, "message": msg, "data": e.DataBase64,
		}})
		h.app.notifyWake()

	case protocol.Ping:
		h.app.bus.Publish(events.Event{Name: events.PeerStatus, Payload: map[string]interface{}{
			"pinId": h.pinID, "shortKey": short, "online": true,
		}})

	case protocol.PinMigrate:
		// only meaningful on contact channels; a peer cannot re-key us
		logger.Warn("pin_migrate_ignored", "pinId", h.pinID)
	}
}

// contactHandler receives traffic on a saved contact's channel.
type contactHandler struct {
	app       *App
	contactID string
	secret    [channel.SecretSize]byte
}

func (h *contactHandler) OnConnect(l transport.Link) {
	if _, err := h.app.Contacts.UpdatePublicKey(h.contactID, l.RemoteKeyHex()); err != nil {
		logger.Warn("contact_key_update_failed", "id", h.contactID, "error", err)
	}
	h.app.bus.Publish(events.Event{Name: events.PeerStatus, Payload: map[string]interface{}{
		"contactId": h.contactID, "online": true,
	}})
	h.app.flushContactQueue(h.contactID, h.secret, l)
}

func (h *contactHandler) OnDisconnect(l transport.Link) {
	h.app.bus.Publish(events.Event{Name: events.PeerStatus, Payload: map[string]interface{}{
		"contactId": h.contactID, "online": false,
	}})
}

func (h *contactHandler) OnPayload(l transport.Link, b []byte) {
	plain, err := channel.Open(h.secret, b)
	if err != nil {
		logger.Warn("sealed_payload_rejected", "contactId", h.contactID, "error", err)
		return
	}
	env, ok := protocol.Decode(plain)
	if !ok {
		logger.Warn("envelope_rejected", "contactId", h.contactID)
		return
	}
	switch e := env.(type) {
	case protocol.Message:
		if err := validation.Content(e.Content); err != nil {
			logger.Warn("inbound_content_rejected", "contactId", h.contactID, "error", err)
			return
		}
		msg, err := h.app.Threads.AppendKey(h.contactID, store.AppendParams{
			From:    channel.ShortKey(l.RemoteKeyHex()),
			Content: e.Content,
			SentAt:  e.Timestamp,
		})
		if err != nil {
			logger.Error("inbound_append_failed", "contactId", h.contactID, "error", err)
			return
		}
		h.app.bus.Publish(events.Event{Name: events.ContactRecv, Payload: map[string]interface{}{
			"contactId": h.contactID, "message": msg,
		}})
		h.app.notifyWake()

	case protocol.File:
		msg, err := h.app.Threads.AppendKey(h.contactID, store.AppendParams{
			From:     channel.ShortKey(l.RemoteKeyHex()),
			Kind:     "file",
			Filename: validation.Filename(e.Filename),
			MimeType: e.MimeType,
			SentAt:   e.Timestamp,
		})
		if err != nil {
			logger.Error("inbound_file_append_failed", "contactId", h.contactID, "error", err)
			return
		}
		h.app.bus.Publish(events.Event{Name: events.FileReceived, Payload: map[string]interface{}{
			"contactId": h.contactID, "message": msg, "data": e.DataBase64,
		}})
		h.app.notifyWake()

	case protocol.PinMigrate:
		// the peer promoted us out of their lobby or rotated their pin:
		// re-key the contact and rejoin the new channel
		updated, err := h.app.Contacts.UpdatePin(h.contactID, e.NewPin)
		if err != nil {
			logger.Error("contact_pin_update_failed", "id", h.contactID, "error", err)
			return
		}
		h.app.leaveContact(h.contactID)
		if err := h.app.joinContact(updated); err != nil {
			logger.Error("contact_rejoin_failed", "id", h.contactID, "error", err)
		}
		logger.Info("contact_pin_migrated", "id", h.contactID)
		h.app.publishContacts()

	case protocol.Ping:
		h.app.bus.Publish(events.Event{Name: events.PeerStatus, Payload: map[string]interface{}{
			"contactId": h.contactID, "online": true,
		}})
	}
}

// flushPinQueue delivers messages parked for one of our pins once a peer
// shows up on its channel.
func (a *App) flushPinQueue(pinID, pinValue string, secret [channel.SecretSize]byte, l transport.Link) {
	items, err := a.Queue.LoadAll()
	if err != nil {
		logger.Error("queue_load_failed", "error", err)
		return
	}
	for _, it := range items {
		if it.Type != models.QueuePinMessage || it.PinID != pinID || it.Expired(nowMs()) {
			continue
		}
		item := it
		err := a.pool.Enqueue(l, channel.Seal(secret, protocol.EncodeMessage(item.Content)), func(sendErr error) {
			if sendErr != nil {
				return
			}
			_ = a.Queue.Remove(item.ID)
			_ = a.Threads.MarkDelivered(pinValue, item.LocalID)
			a.bus.Publish(events.Event{Name: events.MsgDelivered, Payload: map[string]string{
				"pinId": pinID, "localId": item.LocalID,
			}})
		})
		if err != nil {
			logger.Warn("queue_flush_enqueue_failed", "item", item.ID, "error", err)
		}
	}
}

// flushContactQueue delivers messages parked for a contact.
func (a *App) flushContactQueue(contactID string, secret [channel.SecretSize]byte, l transport.Link) {
	c, err := a.Contacts.FindByID(contactID)
	if err != nil {
		return
	}
	items, err := a.Queue.LoadAll()
	if err != nil {
		logger.Error("queue_load_failed", "error", err)
		return
	}
	for _, it := range items {
		if it.Type != models.QueueContactMessage || it.TheirNumber != c.TheirNumber || it.Expired(nowMs()) {
			continue
		}
		item := it
		err := a.pool.Enqueue(l, channel.Seal(secret, protocol.EncodeMessage(item.Content)), func(sendErr error) {
			if sendErr != nil {
				return
			}
			_ = a.Queue.Remove(item.ID)
			_ = a.Threads.MarkDelivered(contactID, item.LocalID)
			a.bus.Publish(events.Event{Name: events.MsgDelivered, Payload: map[string]string{
				"contactId": contactID, "localId": item.LocalID,
			}})
		})
		if err != nil {
			logger.Warn("queue_flush_enqueue_failed", "item", item.ID, "error", err)
		}
	}
}
