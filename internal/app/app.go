// Package app is the daemon core: it owns the stores, keeps one swarm
// session per active pin and per saved contact, turns inbound envelopes
// into stored records and events, and routes outbound sends through the
// delivery pool or the offline queue.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zerozero/internal/deliver"
	"zerozero/pkg/channel"
	"zerozero/pkg/config"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	"zerozero/pkg/notify"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
)

// Options wires the App together. Store and Transport are required; a
// nil Bus gets the nop bus and a nil Notifier disables wake-up hints.
type Options struct {
	Config    *config.Config
	DataPath  string
	Store     *store.Store
	Transport transport.Transport
	Bus       events.Bus
	Notifier  *notify.Client
}

// App is the daemon core.
type App struct {
	cfg      *config.Config
	dataPath string
	st       *store.Store
	tr       transport.Transport
	bus      events.Bus
	pool     *deliver.Pool
	notifier *notify.Client

	Pins     *store.Pins
	Threads  *store.Threads
	Queue    *store.Queue
	Contacts *store.Contacts

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	identity        models.Identity
	pinSessions     map[string]*pinSession
	contactSessions map[string]*contactSession
}

// New builds the core over an opened store. The local identity is
// created on first run.
func New(opts Options) (*App, error) {
	if opts.Store == nil || opts.Transport == nil {
		return nil, fmt.Errorf("app requires a store and a transport")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.Nop{}
	}

	pins, err := store.NewPins(opts.Store)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:             cfg,
		dataPath:        opts.DataPath,
		st:              opts.Store,
		tr:              opts.Transport,
		bus:             bus,
		notifier:        opts.Notifier,
		Pins:            pins,
		Threads:         store.NewThreads(opts.Store, pins),
		Queue:           store.NewQueue(opts.Store),
		Contacts:        store.NewContacts(opts.Store),
		pinSessions:     map[string]*pinSession{},
		contactSessions: map[string]*contactSession{},
	}
	a.pool = deliver.New(deliver.Config{
		Workers:     cfg.Deliver.Workers,
		Capacity:    cfg.Deliver.Capacity,
		RatePerLink: cfg.Deliver.RatePerLink,
		Burst:       cfg.Deliver.Burst,
		MaxPayload:  cfg.Deliver.MaxPayload.Int64(),
	})

	if err := a.ensureIdentity(); err != nil {
		return nil, err
	}
	return a, nil
}

// ensureIdentity loads the persisted identity or mints one.
func (a *App) ensureIdentity() error {
	id, ok, err := a.st.LoadIdentity()
	if err != nil {
		return err
	}
	if !ok {
		id = models.Identity{Number: store.GenerateNumber(), CreatedAt: time.Now().UnixMilli()}
		if err := a.st.SaveIdentity(id); err != nil {
			return err
		}
		logger.Info("identity_created", "number", id.Number)
	}
	a.identity = id
	return nil
}

// Number is the local address.
func (a *App) Number() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity.Number
}

// Start brings up the delivery pool and joins every active pin and every
// saved contact.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.pool.Start(a.ctx)

	for _, pin := range a.Pins.GetActive() {
		if err := a.joinPin(pin); err != nil {
			logger.Warn("pin_join_failed", "id", pin.ID, "error", err)
		}
	}
	contacts, err := a.Contacts.LoadAll()
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if err := a.joinContact(c); err != nil {
			logger.Warn("contact_join_failed", "id", c.ID, "error", err)
		}
	}
	if a.notifier.Enabled() {
		a.notifier.Register(a.Number())
	}
	a.bus.Publish(events.Event{Name: events.Init, Payload: map[string]string{"number": a.Number()}})
	return nil
}

// Stop tears down sessions and the delivery pool.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	var sessions []transport.Session
	for _, ps := range a.pinSessions {
		sessions = append(sessions, ps.sess)
	}
	for _, cs := range a.contactSessions {
		sessions = append(sessions, cs.sess)
	}
	a.pinSessions = map[string]*pinSession{}
	a.contactSessions = map[string]*contactSession{}
	a.mu.Unlock()

	for _, s := range sessions {
		_ = s.Leave()
	}
	a.pool.Stop()
	logger.Info("app_stopped")
}

// RenewNumber mints a fresh address. Every pin is revoked (the old
// address is what they rendezvous against) and every pin session is
// dropped; contacts survive since they key on the remote address.
func (a *App) RenewNumber() (string, error) {
	a.mu.Lock()
	old := a.identity.Number
	a.mu.Unlock()

	for _, pin := range a.Pins.GetActive() {
		a.Pins.Revoke(pin.ID)
		a.leavePin(pin.ID)
	}

	id := models.Identity{Number: store.GenerateNumber(), CreatedAt: time.Now().UnixMilli(), RenewedAt: time.Now().UnixMilli()}
	if err := a.st.SaveIdentity(id); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.identity = id
	a.mu.Unlock()

	if a.notifier.Enabled() {
		a.notifier.Unregister(old)
		a.notifier.Register(id.Number)
	}
	logger.Info("number_renewed")
	a.bus.Publish(events.Event{Name: events.NumberRenewed, Payload: map[string]string{"number": id.Number}})
	return id.Number, nil
}

// notifyWake hints the relay that traffic arrived.
func (a *App) notifyWake() {
	if a.notifier.Enabled() {
		a.notifier.Notify(a.Number())
	}
}

// ShortKeyOf exposes the sender key mapping used for lobby sub-threads.
func ShortKeyOf(pubKeyHex string) string { return channel.ShortKey(pubKeyHex) }
