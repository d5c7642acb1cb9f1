// Package events carries state changes from the daemon core to attached
// frontends. The name vocabulary is closed: frontends switch on these
// constants, so new behavior means a new constant here first.
package events

import (
	"sync"

	"zerozero/pkg/logger"
)

// Name identifies one kind of event.
type Name string

const (
	Init          Name = "init"
	InboxList     Name = "inbox.list"
	MessagesList  Name = "messages.list"
	MsgReceived   Name = "message.received"
	MsgSent       Name = "message.sent"
	MsgQueued     Name = "message.queued"
	MsgDelivered  Name = "message.delivered"
	PinCreated    Name = "pin.created"
	PinRotated    Name = "pin.rotated"
	PinRevoked    Name = "pin.revoked"
	LobbyThreads  Name = "lobby.threads"
	LobbyConn     Name = "lobby.connected"
	LobbyMessage  Name = "lobby.message"
	LobbyMigrated Name = "lobby.migrated"
	LobbyDisconn  Name = "lobby.disconnected"
	PeerStatus    Name = "peer.status"
	ContactsList  Name = "contacts.list"
	ContactRecv   Name = "contact.message.received"
	ContactSent   Name = "contact.message.sent"
	ChatStarted   Name = "chat.started"
	NumberRenewed Name = "number.renewed"
	FileReceived  Name = "file.received"
	FileSent      Name = "file.sent"
	Error         Name = "error"
)

// Event is one notification. Payload shapes are per-name and serialize
// to JSON at the frontend boundary.
type Event struct {
	Name    Name        `json:"event"`
	Payload interface{} `json:"data,omitempty"`
}

// Bus is the fan-out surface the core publishes into.
type Bus interface {
	Publish(Event)
	// Subscribe registers a sink and returns its cancel func. Sinks must
	// not block; slow sinks drop events.
	Subscribe(func(Event)) (cancel func())
}

// FanOut is the standard Bus: every published event reaches every live
// subscriber through a per-subscriber buffered channel. A subscriber
// whose buffer is full loses the event rather than stalling the core.
type FanOut struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

const subBuffer = 256

func NewFanOut() *FanOut {
	return &FanOut{subs: map[int]chan Event{}}
}

func (f *FanOut) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("event_dropped", "subscriber", id, "event", string(ev.Name))
		}
	}
}

func (f *FanOut) Subscribe(fn func(Event)) func() {
	ch := make(chan Event, subBuffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-ch:
				fn(ev)
			case <-done:
				return
			}
		}
	}()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(done)
	}
}

// Nop discards everything; used where a component requires a Bus but the
// caller has no frontend attached.
type Nop struct{}

func (Nop) Publish(Event)                {}
func (Nop) Subscribe(func(Event)) func() { return func() {} }
