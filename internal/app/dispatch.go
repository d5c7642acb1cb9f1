package app

import (
	"fmt"

	"zerozero/pkg/events"
	"zerozero/pkg/models"
)

// Command is one frontend request over the websocket. Fields beyond
// Action are per-action; unknown actions produce an error event.
type Command struct {
	Action string `json:"action"`

	PinID     string `json:"pinId,omitempty"`
	Pin       string `json:"pin,omitempty"`
	ShortKey  string `json:"shortKey,omitempty"`
	ContactID string `json:"contactId,omitempty"`
	Number    string `json:"number,omitempty"`
	ThreadKey string `json:"threadKey,omitempty"`

	Content string `json:"content,omitempty"`
	LocalID string `json:"localId,omitempty"`
	Label   string `json:"label,omitempty"`
	Type    string `json:"type,omitempty"`
	Expiry  string `json:"expiry,omitempty"`
	Limit   int    `json:"limit,omitempty"`

	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

func (a *App) fail(action string, err error) {
	a.bus.Publish(events.Event{Name: events.Error, Payload: map[string]string{
		"action": action, "message": err.Error(),
	}})
}

// Dispatch executes one frontend command; results come back as events.
func (a *App) Dispatch(cmd Command) {
	switch cmd.Action {
	case "init":
		a.bus.Publish(events.Event{Name: events.Init, Payload: map[string]string{"number": a.Number()}})
		a.publishInbox()
		a.publishRequests()
		a.publishContacts()

	case "inbox.get":
		a.publishInbox()

	case "messages.get":
		key := cmd.ThreadKey
		if key == "" {
			key = cmd.Pin
		}
		msgs := a.Threads.ListKey(key, cmd.Limit)
		a.bus.Publish(events.Event{Name: events.MessagesList, Payload: map[string]interface{}{
			"threadKey": key, "messages": msgs,
		}})

	case "messages.read":
		key := cmd.ThreadKey
		if key == "" {
			key = cmd.Pin
		}
		if err := a.MarkThreadRead(key); err != nil {
			a.fail(cmd.Action, err)
		}

	case "message.send":
		if _, err := a.SendToPin(cmd.Pin, cmd.ShortKey, cmd.Content, cmd.LocalID); err != nil {
			a.fail(cmd.Action, err)
		}

	case "pin.create":
		typ := models.PinDirect
		if cmd.Type == string(models.PinLobby) {
			typ = models.PinLobby
		}
		if _, err := a.CreatePin(cmd.Pin, cmd.Label, typ, cmd.Expiry); err != nil {
			a.fail(cmd.Action, err)
			return
		}
		a.publishInbox()

	case "pin.rotate":
		if _, err := a.RotatePin(cmd.PinID, cmd.Pin); err != nil {
			a.fail(cmd.Action, err)
		}

	case "pin.revoke":
		if !a.RevokePin(cmd.PinID) {
			a.fail(cmd.Action, fmt.Errorf("unknown pin %s", cmd.PinID))
		}

	case "pin.label":
		if err := a.Pins.SetLabel(cmd.PinID, cmd.Label); err != nil {
			a.fail(cmd.Action, err)
			return
		}
		a.publishInbox()

	case "lobby.threads":
		a.publishRequests()

	case "contacts.get":
		a.publishContacts()

	case "contact.add", "chat.start":
		if _, err := a.AddContact(cmd.Number, cmd.Pin, cmd.Label); err != nil {
			a.fail(cmd.Action, err)
		}

	case "contact.label":
		if _, err := a.Contacts.UpdateLabel(cmd.ContactID, cmd.Label); err != nil {
			a.fail(cmd.Action, err)
			return
		}
		a.publishContacts()

	case "contact.remove":
		if err := a.RemoveContact(cmd.ContactID); err != nil {
			a.fail(cmd.Action, err)
		}

	case "contact.send":
		if _, err := a.SendToContact(cmd.ContactID, cmd.Content, cmd.LocalID); err != nil {
			a.fail(cmd.Action, err)
		}

	case "file.send":
		if _, err := a.SendFile(cmd.ContactID, cmd.Pin, cmd.ShortKey, cmd.Filename, cmd.MimeType, cmd.Data); err != nil {
			a.fail(cmd.Action, err)
		}

	case "number.renew":
		if _, err := a.RenewNumber(); err != nil {
			a.fail(cmd.Action, err)
		}

	case "queue.get":
		items, err := a.Queue.LoadAll()
		if err != nil {
			a.fail(cmd.Action, err)
			return
		}
		a.bus.Publish(events.Event{Name: events.MsgQueued, Payload: map[string]interface{}{
			"items": items,
		}})

	default:
		a.fail(cmd.Action, fmt.Errorf("unknown action %q", cmd.Action))
	}
}
