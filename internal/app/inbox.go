package app

import (
	"zerozero/pkg/events"
	"zerozero/pkg/models"
)

// Inbox returns one row per active pin with its thread counters. Lobby
// pins aggregate across their sub-threads.
func (a *App) Inbox() []models.InboxEntry {
	out := []models.InboxEntry{}
	for _, pin := range a.Pins.GetActive() {
		entry := models.InboxEntry{Pin: pin}
		if pin.Type == models.PinLobby {
			for _, sub := range a.Threads.ListLobbyThreads(pin.Value) {
				entry.MessageCount += sub.Count
				entry.Unread += sub.Unread
				if sub.Latest != nil && (entry.Latest == nil || sub.Latest.Timestamp > entry.Latest.Timestamp) {
					entry.Latest = sub.Latest
				}
			}
		} else {
			msgs := a.Threads.ListKey(pin.Value, 0)
			entry.MessageCount = len(msgs)
			entry.Unread = a.Threads.CountUnread(pin.Value)
			if len(msgs) > 0 {
				entry.Latest = &msgs[len(msgs)-1]
			}
		}
		out = append(out, entry)
	}
	return out
}

// Requests lists the lobby sub-threads awaiting a first reply, across
// all active lobby pins.
func (a *App) Requests() []models.ThreadSummary {
	out := []models.ThreadSummary{}
	for _, pin := range a.Pins.GetActive() {
		if pin.Type != models.PinLobby {
			continue
		}
		out = append(out, a.Threads.ListLobbyThreads(pin.Value)...)
	}
	return out
}

// ContactList returns per-contact summaries.
func (a *App) ContactList() ([]models.ContactEntry, error) {
	contacts, err := a.Contacts.LoadAll()
	if err != nil {
		return nil, err
	}
	out := []models.ContactEntry{}
	for _, c := range contacts {
		msgs := a.Threads.ListKey(c.ID, 0)
		entry := models.ContactEntry{
			Contact:      c,
			MessageCount: len(msgs),
			Unread:       a.Threads.CountUnread(c.ID),
		}
		if len(msgs) > 0 {
			entry.Latest = &msgs[len(msgs)-1]
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *App) publishInbox() {
	a.bus.Publish(events.Event{Name: events.InboxList, Payload: a.Inbox()})
}

func (a *App) publishContacts() {
	list, err := a.ContactList()
	if err != nil {
		return
	}
	a.bus.Publish(events.Event{Name: events.ContactsList, Payload: list})
}

func (a *App) publishRequests() {
	a.bus.Publish(events.Event{Name: events.LobbyThreads, Payload: a.Requests()})
}
