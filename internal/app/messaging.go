package app

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"zerozero/pkg/channel"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	pinpkg "zerozero/pkg/pin"
	"zerozero/pkg/protocol"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
	"zerozero/pkg/utils"
	"zerozero/pkg/validation"
)

var expiryRe = regexp.MustCompile(`^(\d+)([hdw])$`)

// ParseExpiry maps "none"/"" or "<n>h|d|w" to an absolute unix-ms
// deadline. Zero means never.
func ParseExpiry(s string, now int64) (int64, error) {
	if s == "" || s == "none" {
		return 0, nil
	}
	m := expiryRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid expiry %q (want none, <n>h, <n>d or <n>w)", s)
	}
	n, _ := strconv.ParseInt(m[1], 10, 64)
	var unit time.Duration
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return now + (time.Duration(n) * unit).Milliseconds(), nil
}

// CreatePin mints and joins a pin. An empty value gets a random one.
func (a *App) CreatePin(value, label string, typ models.PinType, expiry string) (models.Pin, error) {
	expiresAt, err := ParseExpiry(expiry, nowMs())
	if err != nil {
		return models.Pin{}, err
	}
	tries := 1
	if value == "" {
		value = pinpkg.Generate(pinpkg.DefaultLength)
		tries = 5
	}
	var pin models.Pin
	for i := 0; i < tries; i++ {
		pin, err = a.Pins.Create(store.CreateParams{Value: value, Label: label, Type: typ, Expiry: expiry, ExpiresAt: expiresAt})
		if err == nil {
			break
		}
		if i+1 < tries {
			value = pinpkg.Generate(pinpkg.DefaultLength)
		}
	}
	if err != nil {
		return models.Pin{}, err
	}
	if err := a.joinPin(pin); err != nil {
		logger.Warn("pin_join_failed", "id", pin.ID, "error", err)
	}
	a.bus.Publish(events.Event{Name: events.PinCreated, Payload: pin})
	return pin, nil
}

// RotatePin swaps the pin's value. Peers connected on the old channel
// get a pin_migrate so they can follow; then the old channel is left.
func (a *App) RotatePin(id, newValue string) (models.Pin, error) {
	if newValue == "" {
		newValue = pinpkg.Generate(pinpkg.DefaultLength)
	}
	pin, err := a.Pins.Rotate(id, newValue)
	if err != nil {
		return models.Pin{}, err
	}

	a.mu.Lock()
	ps, hadSession := a.pinSessions[id]
	a.mu.Unlock()
	if hadSession {
		migrate := channel.Seal(ps.secret, protocol.EncodePinMigrate(a.Number(), newValue))
		for _, l := range ps.sess.Links() {
			if err := l.Send(migrate); err != nil {
				logger.Warn("pin_migrate_send_failed", "id", id, "error", err)
			}
		}
		a.leavePin(id)
	}
	if err := a.joinPin(pin); err != nil {
		logger.Warn("pin_join_failed", "id", pin.ID, "error", err)
	}
	a.bus.Publish(events.Event{Name: events.PinRotated, Payload: pin})
	return pin, nil
}

// RevokePin deactivates the pin and leaves its channel.
func (a *App) RevokePin(id string) bool {
	ok := a.Pins.Revoke(id)
	if ok {
		a.leavePin(id)
		a.bus.Publish(events.Event{Name: events.PinRevoked, Payload: map[string]string{"pinId": id}})
	}
	return ok
}

// SendToPin replies into one of our pin threads. shortKey picks the
// lobby sub-thread; the first local reply into a lobby sub-thread runs
// the migration flow instead of a plain send.
func (a *App) SendToPin(pinValue, shortKey, content, localID string) (models.StoredMessage, error) {
	if err := validation.Content(content); err != nil {
		return models.StoredMessage{}, err
	}
	pin, err := a.Pins.FindByValue(pinValue)
	if err != nil {
		return models.StoredMessage{}, err
	}
	if !pin.Live(nowMs()) {
		return models.StoredMessage{}, fmt.Errorf("pin is not active")
	}

	threadKey := pinValue
	if pin.Type == models.PinLobby && shortKey != "" {
		// a sub-thread already promoted to its own pin gets follow-ups
		// routed there instead of being migrated a second time
		if promoted, ok := a.Threads.MigratedTo(pinValue, shortKey); ok {
			return a.SendToPin(promoted, "", content, localID)
		}
		threadKey = store.SubThreadKey(pinValue, shortKey)
		if !a.Threads.HasLocalReply(threadKey) {
			return a.migrateLobbyThread(pin, shortKey, content, localID)
		}
	}

	msg, err := a.Threads.AppendKey(threadKey, store.AppendParams{
		From:    a.Number(),
		Content: content,
		IsMine:  true,
		LocalID: localID,
		Status:  models.StatusQueued,
	})
	if err != nil {
		return models.StoredMessage{}, err
	}
	a.deliverOrQueuePin(pin, threadKey, shortKey, content, localID)
	return msg, nil
}

func (a *App) deliverOrQueuePin(pin models.Pin, threadKey, shortKey, content, localID string) {
	if link, ok := a.pinLink(pin.ID, shortKey); ok {
		secret, _ := a.pinSecret(pin.ID)
		err := a.pool.Enqueue(link, channel.Seal(secret, protocol.EncodeMessage(content)), func(sendErr error) {
			if sendErr != nil {
				a.queuePinItem(pin, content, localID)
				return
			}
			_ = a.Threads.MarkDelivered(threadKey, localID)
			a.bus.Publish(events.Event{Name: events.MsgDelivered, Payload: map[string]string{
				"pinId": pin.ID, "localId": localID,
			}})
		})
		if err == nil {
			a.bus.Publish(events.Event{Name: events.MsgSent, Payload: map[string]string{
				"pinId": pin.ID, "localId": localID,
			}})
			return
		}
		logger.Warn("send_enqueue_failed", "pinId", pin.ID, "error", err)
	}
	a.queuePinItem(pin, content, localID)
}

func (a *App) queuePinItem(pin models.Pin, content, localID string) {
	if _, err := a.Queue.Append(store.QueueAppendParams{
		Type:    models.QueuePinMessage,
		PinID:   pin.ID,
		Content: content,
		LocalID: localID,
		TTL:     a.cfg.Queue.TTL.Duration(),
	}); err != nil {
		logger.Error("queue_append_failed", "pinId", pin.ID, "error", err)
		return
	}
	a.bus.Publish(events.Event{Name: events.MsgQueued, Payload: map[string]string{
		"pinId": pin.ID, "localId": localID,
	}})
}

// migrateLobbyThread runs the first-reply promotion: mint a fresh direct
// pin, carry the sub-thread history over, tell the peer to re-key, and
// deliver the reply on the new channel.
func (a *App) migrateLobbyThread(lobby models.Pin, shortKey, content, localID string) (models.StoredMessage, error) {
	subKey := store.SubThreadKey(lobby.Value, shortKey)

	var newPin models.Pin
	var err error
	for i := 0; i < 5; i++ {
		newPin, err = a.Pins.Create(store.CreateParams{
			Value: pinpkg.Generate(pinpkg.DefaultLength),
			Label: lobby.Label,
			Type:  models.PinDirect,
		})
		if err == nil {
			break
		}
	}
	if err != nil {
		return models.StoredMessage{}, fmt.Errorf("mint migration pin: %w", err)
	}

	// reply joins the sub-thread first so the migration carries it too
	msg, err := a.Threads.AppendKey(subKey, store.AppendParams{
		From:    a.Number(),
		Content: content,
		IsMine:  true,
		LocalID: localID,
		Status:  models.StatusQueued,
	})
	if err != nil {
		return models.StoredMessage{}, err
	}
	if err := a.Threads.Migrate(lobby.Value, shortKey, newPin.Value); err != nil {
		return models.StoredMessage{}, err
	}
	if err := a.joinPin(newPin); err != nil {
		logger.Warn("pin_join_failed", "id", newPin.ID, "error", err)
	}

	if link, ok := a.pinLink(lobby.ID, shortKey); ok {
		lobbySecret, _ := a.pinSecret(lobby.ID)
		if err := link.Send(channel.Seal(lobbySecret, protocol.EncodePinMigrate(a.Number(), newPin.Value))); err != nil {
			logger.Warn("pin_migrate_send_failed", "id", lobby.ID, "error", err)
		}
		a.deliverOrQueuePin(newPin, newPin.Value, "", content, localID)
	} else {
		// peer offline: the reply waits on the new channel; they learn the
		// new pin when they next reach the lobby and we are connected
		logger.Warn("lobby_peer_offline_during_migration", "shortKey", shortKey)
		a.queuePinItem(newPin, content, localID)
	}

	a.bus.Publish(events.Event{Name: events.LobbyMigrated, Payload: map[string]string{
		"lobbyPinId": lobby.ID, "shortKey": shortKey,
		"newPinId": newPin.ID, "newPinValue": newPin.Value,
	}})
	msg.ThreadKey = newPin.Value
	return msg, nil
}

// AddContact saves a peer and joins their channel.
func (a *App) AddContact(theirNumber, theirPin, label string) (models.Contact, error) {
	c, err := a.Contacts.Create(theirNumber, theirPin, label)
	if err != nil {
		return models.Contact{}, err
	}
	if err := a.joinContact(c); err != nil {
		logger.Warn("contact_join_failed", "id", c.ID, "error", err)
	}
	a.bus.Publish(events.Event{Name: events.ChatStarted, Payload: c})
	a.publishContacts()
	return c, nil
}

// RemoveContact drops the contact and its channel. History stays.
func (a *App) RemoveContact(id string) error {
	a.leaveContact(id)
	if err := a.Contacts.Remove(id); err != nil {
		return err
	}
	a.publishContacts()
	return nil
}

// SendToContact sends to a saved peer, queueing when offline.
func (a *App) SendToContact(contactID, content, localID string) (models.StoredMessage, error) {
	if err := validation.Content(content); err != nil {
		return models.StoredMessage{}, err
	}
	c, err := a.Contacts.FindByID(contactID)
	if err != nil {
		return models.StoredMessage{}, err
	}
	msg, err := a.Threads.AppendKey(contactID, store.AppendParams{
		From:    a.Number(),
		Content: content,
		IsMine:  true,
		LocalID: localID,
		Status:  models.StatusQueued,
	})
	if err != nil {
		return models.StoredMessage{}, err
	}

	if link, ok := a.contactLink(contactID); ok {
		secret, _ := a.contactSecret(contactID)
		err := a.pool.Enqueue(link, channel.Seal(secret, protocol.EncodeMessage(content)), func(sendErr error) {
			if sendErr != nil {
				a.queueContactItem(c, content, localID)
				return
			}
			_ = a.Threads.MarkDelivered(contactID, localID)
			a.bus.Publish(events.Event{Name: events.MsgDelivered, Payload: map[string]string{
				"contactId": contactID, "localId": localID,
			}})
		})
		if err == nil {
			a.bus.Publish(events.Event{Name: events.ContactSent, Payload: map[string]interface{}{
				"contactId": contactID, "message": msg,
			}})
			return msg, nil
		}
		logger.Warn("send_enqueue_failed", "contactId", contactID, "error", err)
	}
	a.queueContactItem(c, content, localID)
	return msg, nil
}

func (a *App) queueContactItem(c models.Contact, content, localID string) {
	if _, err := a.Queue.Append(store.QueueAppendParams{
		Type:        models.QueueContactMessage,
		TheirNumber: c.TheirNumber,
		Pin:         c.TheirPin,
		Content:     content,
		LocalID:     localID,
		TTL:         a.cfg.Queue.TTL.Duration(),
	}); err != nil {
		logger.Error("queue_append_failed", "contactId", c.ID, "error", err)
		return
	}
	a.bus.Publish(events.Event{Name: events.MsgQueued, Payload: map[string]string{
		"contactId": c.ID, "localId": localID,
	}})
}

// SendFile relays a file to a live peer. Files are never queued; the
// payload exists only in flight.
func (a *App) SendFile(contactID, pinValue, shortKey, filename, mimeType, dataBase64 string) (models.StoredMessage, error) {
	filename = validation.Filename(filename)
	var link transport.Link
	var threadKey string
	var secret [channel.SecretSize]byte
	var payload map[string]string

	switch {
	case contactID != "":
		l, ok := a.contactLink(contactID)
		if !ok {
			return models.StoredMessage{}, fmt.Errorf("contact is offline")
		}
		link, threadKey = l, contactID
		secret, _ = a.contactSecret(contactID)
		payload = map[string]string{"contactId": contactID}
	case pinValue != "":
		pin, err := a.Pins.FindByValue(pinValue)
		if err != nil {
			return models.StoredMessage{}, err
		}
		l, ok := a.pinLink(pin.ID, shortKey)
		if !ok {
			return models.StoredMessage{}, fmt.Errorf("peer is offline")
		}
		link, threadKey = l, pinValue
		if shortKey != "" {
			threadKey = store.SubThreadKey(pinValue, shortKey)
		}
		secret, _ = a.pinSecret(pin.ID)
		payload = map[string]string{"pinId": pin.ID}
	default:
		return models.StoredMessage{}, fmt.Errorf("file target required")
	}

	localID := utils.GenID("file")
	msg, err := a.Threads.AppendKey(threadKey, store.AppendParams{
		From:     a.Number(),
		Kind:     "file",
		Filename: filename,
		MimeType: mimeType,
		IsMine:   true,
		LocalID:  localID,
		Status:   models.StatusQueued,
	})
	if err != nil {
		return models.StoredMessage{}, err
	}
	err = a.pool.Enqueue(link, channel.Seal(secret, protocol.EncodeFile(filename, mimeType, dataBase64)), func(sendErr error) {
		if sendErr != nil {
			return
		}
		_ = a.Threads.MarkDelivered(threadKey, localID)
		a.bus.Publish(events.Event{Name: events.FileSent, Payload: payload})
	})
	if err != nil {
		return models.StoredMessage{}, err
	}
	return msg, nil
}

// MarkThreadRead acknowledges a thread and republishes the inbox.
func (a *App) MarkThreadRead(threadKey string) error {
	if err := a.Threads.MarkRead(threadKey); err != nil {
		return err
	}
	a.publishInbox()
	return nil
}

// PinURI renders the shareable address for one of our pins.
func (a *App) PinURI(pin models.Pin) string {
	return protocol.URI(a.Number(), pin.Value)
}
