package transport

import (
	"context"
	"errors"
	"sync"
)

// Hub wires in-process Mem transports together: two nodes joining the
// same topic on the same hub get connected. Tests stand up a hub, hang
// one node per simulated process off it, and drive real traffic without
// a network.
type Hub struct {
	mu     sync.Mutex
	topics map[[32]byte]map[*memSession]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: map[[32]byte]map[*memSession]struct{}{}}
}

// Mem is one node's view of the hub.
type Mem struct {
	hub    *Hub
	keyHex string

	mu       sync.Mutex
	closed   bool
	sessions []*memSession
}

// NewMem creates a node identified by keyHex on the hub.
func NewMem(hub *Hub, keyHex string) *Mem {
	return &Mem{hub: hub, keyHex: keyHex}
}

func (m *Mem) LocalKeyHex() string { return m.keyHex }

var errClosed = errors.New("transport closed")

func (m *Mem) Join(_ context.Context, topic [32]byte, h Handler) (Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errClosed
	}
	m.mu.Unlock()

	sess := &memSession{owner: m, topic: topic, handler: h, links: map[*memLink]struct{}{}}

	m.hub.mu.Lock()
	peers := m.hub.topics[topic]
	if peers == nil {
		peers = map[*memSession]struct{}{}
		m.hub.topics[topic] = peers
	}
	var dials []*memSession
	for other := range peers {
		dials = append(dials, other)
	}
	peers[sess] = struct{}{}
	m.hub.mu.Unlock()

	m.mu.Lock()
	m.sessions = append(m.sessions, sess)
	m.mu.Unlock()

	for _, other := range dials {
		connect(sess, other)
	}
	return sess, nil
}

// connect builds the two-directional link pair and announces both ends.
func connect(a, b *memSession) {
	la := &memLink{session: a, remote: b.owner.keyHex, inbox: make(chan []byte, 64), done: make(chan struct{})}
	lb := &memLink{session: b, remote: a.owner.keyHex, inbox: make(chan []byte, 64), done: make(chan struct{})}
	la.peer, lb.peer = lb, la

	a.addLink(la)
	b.addLink(lb)
	go la.pump()
	go lb.pump()
	a.handler.OnConnect(la)
	b.handler.OnConnect(lb)
}

func (m *Mem) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = nil
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Leave()
	}
	return nil
}

type memSession struct {
	owner   *Mem
	topic   [32]byte
	handler Handler

	mu    sync.Mutex
	left  bool
	links map[*memLink]struct{}
}

func (s *memSession) Topic() [32]byte { return s.topic }

func (s *memSession) addLink(l *memLink) {
	s.mu.Lock()
	s.links[l] = struct{}{}
	s.mu.Unlock()
}

func (s *memSession) Links() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Link, 0, len(s.links))
	for l := range s.links {
		out = append(out, l)
	}
	return out
}

func (s *memSession) Leave() error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return nil
	}
	s.left = true
	var links []*memLink
	for l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	s.owner.hub.mu.Lock()
	if peers, ok := s.owner.hub.topics[s.topic]; ok {
		delete(peers, s)
		if len(peers) == 0 {
			delete(s.owner.hub.topics, s.topic)
		}
	}
	s.owner.hub.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
	return nil
}

func (s *memSession) dropLink(l *memLink) {
	s.mu.Lock()
	_, had := s.links[l]
	delete(s.links, l)
	s.mu.Unlock()
	if had {
		s.handler.OnDisconnect(l)
	}
}

type memLink struct {
	session *memSession
	peer    *memLink
	remote  string
	inbox   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (l *memLink) RemoteKeyHex() string { return l.remote }

// pump serializes inbound delivery so per-link ordering holds.
func (l *memLink) pump() {
	for {
		select {
		case payload := <-l.inbox:
			l.session.handler.OnPayload(l, payload)
		case <-l.done:
			// deliver what already arrived before the close
			for {
				select {
				case payload := <-l.inbox:
					l.session.handler.OnPayload(l, payload)
				default:
					return
				}
			}
		}
	}
}

func (l *memLink) Send(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case <-l.peer.done:
		return errClosed
	case l.peer.inbox <- cp:
		return nil
	}
}

func (l *memLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.session.dropLink(l)
		go func() { _ = l.peer.Close() }()
	})
	return nil
}
