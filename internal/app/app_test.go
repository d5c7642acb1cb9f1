package app

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zerozero/pkg/channel"
	"zerozero/pkg/config"
	"zerozero/pkg/events"
	"zerozero/pkg/models"
	"zerozero/pkg/protocol"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
)

type recBus struct {
	mu  sync.Mutex
	evs []events.Event
}

func (b *recBus) Publish(ev events.Event) {
	b.mu.Lock()
	b.evs = append(b.evs, ev)
	b.mu.Unlock()
}

func (b *recBus) Subscribe(func(events.Event)) func() { return func() {} }

func (b *recBus) count(name events.Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.evs {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func newApp(t *testing.T, hub *transport.Hub, keyHex string) (*App, *recBus) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	bus := &recBus{}
	a, err := New(Options{
		Config:    &config.Config{},
		Store:     s,
		Transport: transport.NewMem(hub, keyHex),
		Bus:       bus,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(a.Stop)
	return a, bus
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

const (
	aliceKey = "aaaa1111bbbb2222cccc3333dddd4444"
	bobKey   = "eeee5555ffff6666aaaa7777bbbb8888"
)

func TestDirectPinConversation(t *testing.T) {
	hub := transport.NewHub()
	alice, aliceBus := newApp(t, hub, aliceKey)
	bob, _ := newApp(t, hub, bobKey)

	pin, err := alice.CreatePin("", "home", models.PinDirect, "")
	if err != nil {
		t.Fatalf("create pin: %v", err)
	}
	contact, err := bob.AddContact(alice.Number(), pin.Value, "alice")
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}

	waitFor(t, "link up", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
	if _, err := bob.SendToContact(contact.ID, "hello alice", "local-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "alice stores the message", func() bool {
		return len(alice.Threads.ListKey(pin.Value, 0)) == 1
	})
	got := alice.Threads.ListKey(pin.Value, 0)[0]
	if got.Content != "hello alice" || got.IsMine {
		t.Fatalf("unexpected record: %+v", got)
	}
	if aliceBus.count(events.MsgReceived) == 0 {
		t.Fatal("no message.received event")
	}

	waitFor(t, "bob sees delivery", func() bool {
		msgs := bob.Threads.ListKey(contact.ID, 0)
		return len(msgs) == 1 && msgs[0].Status == models.StatusDelivered
	})
}

func TestOfflineSendQueuesThenFlushes(t *testing.T) {
	hub := transport.NewHub()
	alice, _ := newApp(t, hub, aliceKey)
	bob, bobBus := newApp(t, hub, bobKey)

	// bob saves alice before she opens the pin: nobody on the channel yet
	theirPin := "abc123"
	contact, err := bob.AddContact(alice.Number(), theirPin, "alice")
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if _, err := bob.SendToContact(contact.ID, "are you there?", "local-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "message queued", func() bool {
		items, _ := bob.Queue.LoadAll()
		return len(items) == 1
	})
	if bobBus.count(events.MsgQueued) == 0 {
		t.Fatal("no message.queued event")
	}

	// alice opens the pin; the queued message flushes on connect
	if _, err := alice.CreatePin(theirPin, "", models.PinDirect, ""); err != nil {
		t.Fatalf("create pin: %v", err)
	}
	waitFor(t, "queue drained", func() bool {
		items, _ := bob.Queue.LoadAll()
		return len(items) == 0
	})
	waitFor(t, "alice received", func() bool {
		return len(alice.Threads.ListKey(theirPin, 0)) == 1
	})
	waitFor(t, "bob record delivered", func() bool {
		msgs := bob.Threads.ListKey(contact.ID, 0)
		return len(msgs) == 1 && msgs[0].Status == models.StatusDelivered
	})
}

func TestLobbyMigrationEndToEnd(t *testing.T) {
	hub := transport.NewHub()
	alice, aliceBus := newApp(t, hub, aliceKey)
	bob, _ := newApp(t, hub, bobKey)

	lobby, err := alice.CreatePin("10bb77", "public", models.PinLobby, "")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	contact, err := bob.AddContact(alice.Number(), lobby.Value, "alice-public")
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	waitFor(t, "lobby link", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
	if _, err := bob.SendToContact(contact.ID, "hi, found you via the lobby", "local-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "request appears", func() bool {
		return len(alice.Requests()) == 1
	})
	req := alice.Requests()[0]
	if req.ShortKey != bobKey[:16] || req.Count != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}

	// first reply promotes the sub-thread to a fresh direct pin
	if _, err := alice.SendToPin(lobby.Value, req.ShortKey, "hey! moving us somewhere private", "local-2"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if aliceBus.count(events.LobbyMigrated) != 1 {
		t.Fatal("no lobby.migrated event")
	}
	if len(alice.Requests()) != 0 {
		t.Fatalf("request still listed: %+v", alice.Requests())
	}

	// bob's contact re-keys to the minted pin
	waitFor(t, "bob re-keyed", func() bool {
		c, err := bob.Contacts.FindByID(contact.ID)
		return err == nil && c.TheirPin != lobby.Value
	})
	rekeyed, _ := bob.Contacts.FindByID(contact.ID)

	// the promoted thread carries the full history on alice's side
	newPin, err := alice.Pins.FindByValue(rekeyed.TheirPin)
	if err != nil {
		t.Fatalf("minted pin missing: %v", err)
	}
	history := alice.Threads.ListKey(newPin.Value, 0)
	if len(history) != 2 || history[0].Content != "hi, found you via the lobby" || !history[1].IsMine {
		t.Fatalf("history not carried: %+v", history)
	}

	// and the new channel works both ways
	waitFor(t, "new channel link", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
	if _, err := bob.SendToContact(contact.ID, "got the new pin", "local-3"); err != nil {
		t.Fatalf("send on new channel: %v", err)
	}
	waitFor(t, "alice got it on the new pin", func() bool {
		return len(alice.Threads.ListKey(newPin.Value, 0)) == 3
	})
}

type staticLink struct{ remote string }

func (l staticLink) RemoteKeyHex() string { return l.remote }
func (l staticLink) Send([]byte) error    { return nil }
func (l staticLink) Close() error         { return nil }

// Drives a pin handler directly with sealed envelopes of each kind and
// checks they land where they should.
func TestInboundEnvelopeDispatch(t *testing.T) {
	hub := transport.NewHub()
	alice, aliceBus := newApp(t, hub, aliceKey)
	pin, err := alice.CreatePin("beef12", "", models.PinDirect, "")
	if err != nil {
		t.Fatalf("create pin: %v", err)
	}
	secret := channel.Derive(alice.Number(), pin.Value)
	h := &pinHandler{app: alice, pinID: pin.ID, value: pin.Value, typ: pin.Type, secret: secret}
	link := staticLink{remote: bobKey}

	h.OnPayload(link, channel.Seal(secret, protocol.EncodeMessage("over the wire")))
	msgs := alice.Threads.ListKey(pin.Value, 0)
	if len(msgs) != 1 || msgs[0].Content != "over the wire" || msgs[0].IsMine {
		t.Fatalf("message envelope not stored: %+v", msgs)
	}
	if aliceBus.count(events.MsgReceived) != 1 {
		t.Fatal("no message.received event")
	}

	h.OnPayload(link, channel.Seal(secret, protocol.EncodePing()))
	if aliceBus.count(events.PeerStatus) == 0 {
		t.Fatal("ping did not publish peer status")
	}

	// payloads that did not come from a secret holder are dropped whole
	h.OnPayload(link, protocol.EncodeMessage("unsealed"))
	h.OnPayload(link, []byte("garbage"))
	if got := alice.Threads.ListKey(pin.Value, 0); len(got) != 1 {
		t.Fatalf("rejected payloads were stored: %+v", got)
	}
}

type spyHandler struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *spyHandler) OnConnect(transport.Link)    {}
func (s *spyHandler) OnDisconnect(transport.Link) {}
func (s *spyHandler) OnPayload(_ transport.Link, b []byte) {
	s.mu.Lock()
	s.payloads = append(s.payloads, append([]byte(nil), b...))
	s.mu.Unlock()
}

func (s *spyHandler) last() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		return nil, false
	}
	return s.payloads[len(s.payloads)-1], true
}

// A relay-like observer sits on the hashed topic and captures raw
// frames: it must see only ciphertext it cannot decode.
func TestWireTrafficSealed(t *testing.T) {
	hub := transport.NewHub()
	bob, _ := newApp(t, hub, bobKey)

	theirNumber, theirPin := "0x0-555-0100-0200", "abc123"
	secret := channel.Derive(theirNumber, theirPin)
	spy := &spyHandler{}
	observer := transport.NewMem(hub, "cccc9999dddd0000cccc9999dddd0000")
	if _, err := observer.Join(context.Background(), channel.Topic(secret), spy); err != nil {
		t.Fatalf("observer join: %v", err)
	}

	contact, err := bob.AddContact(theirNumber, theirPin, "alice")
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	waitFor(t, "link up", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
	if _, err := bob.SendToContact(contact.ID, "meet at the usual place", "local-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	var raw []byte
	waitFor(t, "observer captures a frame", func() bool {
		b, ok := spy.last()
		raw = b
		return ok
	})
	if bytes.Contains(raw, []byte("meet at the usual place")) {
		t.Fatal("plaintext crossed the transport")
	}
	if _, ok := protocol.Decode(raw); ok {
		t.Fatal("wire frame decodes without the channel secret")
	}
}

// A second reply into an already-promoted lobby sub-thread must land on
// the promoted pin instead of minting another one.
func TestLobbyFollowUpAfterMigration(t *testing.T) {
	hub := transport.NewHub()
	alice, aliceBus := newApp(t, hub, aliceKey)
	bob, _ := newApp(t, hub, bobKey)

	lobby, err := alice.CreatePin("10bb88", "public", models.PinLobby, "")
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}
	contact, err := bob.AddContact(alice.Number(), lobby.Value, "alice-public")
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	waitFor(t, "lobby link", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
	if _, err := bob.SendToContact(contact.ID, "hello from the lobby", "local-1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "request appears", func() bool {
		return len(alice.Requests()) == 1
	})
	short := alice.Requests()[0].ShortKey

	if _, err := alice.SendToPin(lobby.Value, short, "first reply", "local-2"); err != nil {
		t.Fatalf("first reply: %v", err)
	}
	promoted, ok := alice.Threads.MigratedTo(lobby.Value, short)
	if !ok {
		t.Fatal("promotion not recorded")
	}
	pinsAfterMigration := len(alice.Pins.All())

	msg, err := alice.SendToPin(lobby.Value, short, "second reply", "local-3")
	if err != nil {
		t.Fatalf("second reply: %v", err)
	}
	if msg.ThreadKey != promoted {
		t.Fatalf("follow-up landed on %q, want %q", msg.ThreadKey, promoted)
	}
	if got := len(alice.Pins.All()); got != pinsAfterMigration {
		t.Fatalf("follow-up minted a pin: %d -> %d", pinsAfterMigration, got)
	}
	if aliceBus.count(events.LobbyMigrated) != 1 {
		t.Fatalf("sub-thread migrated twice")
	}
	history := alice.Threads.ListKey(promoted, 0)
	if len(history) != 3 || history[2].Content != "second reply" {
		t.Fatalf("promoted thread history wrong: %+v", history)
	}
}

func TestPinRotatePropagates(t *testing.T) {
	hub := transport.NewHub()
	alice, _ := newApp(t, hub, aliceKey)
	bob, _ := newApp(t, hub, bobKey)

	pin, _ := alice.CreatePin("", "", models.PinDirect, "")
	contact, _ := bob.AddContact(alice.Number(), pin.Value, "")
	waitFor(t, "link up", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})

	rotated, err := alice.RotatePin(pin.ID, "")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	waitFor(t, "bob follows the rotation", func() bool {
		c, err := bob.Contacts.FindByID(contact.ID)
		return err == nil && c.TheirPin == rotated.Value
	})
	waitFor(t, "channel re-established", func() bool {
		_, ok := bob.contactLink(contact.ID)
		return ok
	})
}

func TestRenewNumberRevokesPins(t *testing.T) {
	hub := transport.NewHub()
	alice, aliceBus := newApp(t, hub, aliceKey)

	old := alice.Number()
	alice.CreatePin("", "", models.PinDirect, "")
	alice.CreatePin("", "", models.PinLobby, "")

	renewed, err := alice.RenewNumber()
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if renewed == old {
		t.Fatal("number unchanged")
	}
	if len(alice.Pins.GetActive()) != 0 {
		t.Fatalf("pins survived renewal: %+v", alice.Pins.GetActive())
	}
	if aliceBus.count(events.NumberRenewed) != 1 {
		t.Fatal("no number.renewed event")
	}
}

func TestParseExpiry(t *testing.T) {
	now := int64(1_000_000)
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"none", 0},
		{"2h", now + 2*3600_000},
		{"1d", now + 24*3600_000},
		{"1w", now + 7*24*3600_000},
	}
	for _, c := range cases {
		got, err := ParseExpiry(c.in, now)
		if err != nil || got != c.want {
			t.Fatalf("ParseExpiry(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
	}
	for _, bad := range []string{"3x", "h", "-1d", "1.5h"} {
		if _, err := ParseExpiry(bad, now); err == nil {
			t.Fatalf("expiry %q accepted", bad)
		}
	}
}
