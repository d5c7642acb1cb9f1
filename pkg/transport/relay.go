package transport

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"zerozero/pkg/logger"
)

// Relay connects channels through a rendezvous relay server. Each
// topic maps to a room at <base>/rooms/<topic-hex>; the relay
// broadcasts frames to everyone else in the room and never learns
// more than room membership. Peers announce themselves with hello
// frames and address each other by device key after that.
type Relay struct {
	base   string
	keyHex string
	dialer *websocket.Dialer

	mu       sync.Mutex
	sessions map[*relaySession]struct{}
	closed   bool
}

// frame is the relay wire format. Data payloads are addressed; hello
// and welcome are membership announcements.
type frame struct {
	Type string `json:"type"` // hello|welcome|data|bye
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Data string `json:"data,omitempty"` // base64
}

// LoadOrCreateDeviceKey returns the node's stable device key, minting
// one on first run. Peers recognize us across restarts by this key.
func LoadOrCreateDeviceKey(dataPath string) (string, error) {
	path := filepath.Join(dataPath, "state", "device.key")
	if b, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(b))
		if len(key) == 32 {
			return key, nil
		}
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := hex.EncodeToString(raw)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", err
	}
	return key, nil
}

func NewRelay(base, keyHex string) *Relay {
	return &Relay{
		base:     strings.TrimRight(base, "/"),
		keyHex:   keyHex,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sessions: map[*relaySession]struct{}{},
	}
}

func (r *Relay) LocalKeyHex() string { return r.keyHex }

// roomURL maps a topic to its relay room. Topics are one-way derived
// from the channel secret, so the URL discloses nothing the relay could
// use to read traffic.
func (r *Relay) roomURL(topic [32]byte) (string, error) {
	u, err := url.Parse(r.base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + hex.EncodeToString(topic[:])
	return u.String(), nil
}

// Join dials the topic's room and announces our presence. The handler
// sees one link per remote device key.
func (r *Relay) Join(ctx context.Context, topic [32]byte, h Handler) (Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	r.mu.Unlock()

	addr, err := r.roomURL(topic)
	if err != nil {
		return nil, err
	}
	conn, _, err := r.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("relay dial: %w", err)
	}

	s := &relaySession{
		relay:   r,
		topic:   topic,
		conn:    conn,
		handler: h,
		links:   map[string]*relayLink{},
		send:    make(chan frame, 64),
		done:    make(chan struct{}),
	}
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()

	go s.writeLoop()
	go s.readLoop()
	s.send <- frame{Type: "hello", From: r.keyHex}
	return s, nil
}

func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*relaySession, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		_ = s.Leave()
	}
	return nil
}

type relaySession struct {
	relay   *Relay
	topic   [32]byte
	conn    *websocket.Conn
	handler Handler

	mu    sync.Mutex
	links map[string]*relayLink

	send     chan frame
	done     chan struct{}
	doneOnce sync.Once
}

func (s *relaySession) Topic() [32]byte { return s.topic }

func (s *relaySession) Links() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

func (s *relaySession) Leave() error {
	s.doneOnce.Do(func() {
		// best effort: tell the room we are going
		_ = s.conn.WriteJSON(frame{Type: "bye", From: s.relay.keyHex})
		close(s.done)
		s.conn.Close()
		s.relay.mu.Lock()
		delete(s.relay.sessions, s)
		s.relay.mu.Unlock()
	})
	return nil
}

func (s *relaySession) writeLoop() {
	for {
		select {
		case f := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(f); err != nil {
				s.teardown()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *relaySession) readLoop() {
	defer s.teardown()
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.From == "" || f.From == s.relay.keyHex {
			continue
		}
		switch f.Type {
		case "hello":
			if l := s.addLink(f.From); l != nil {
				// announce back so the newcomer learns about us
				select {
				case s.send <- frame{Type: "welcome", From: s.relay.keyHex}:
				case <-s.done:
					return
				}
				s.handler.OnConnect(l)
			}
		case "welcome":
			if l := s.addLink(f.From); l != nil {
				s.handler.OnConnect(l)
			}
		case "data":
			if f.To != "" && f.To != s.relay.keyHex {
				continue
			}
			l := s.link(f.From)
			if l == nil {
				// peer we missed the hello for
				if l = s.addLink(f.From); l != nil {
					s.handler.OnConnect(l)
				} else {
					l = s.link(f.From)
				}
			}
			if l == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(f.Data)
			if err != nil {
				logger.Warn("relay_bad_payload", "from", f.From[:8])
				continue
			}
			s.handler.OnPayload(l, payload)
		case "bye":
			s.dropLink(f.From)
		}
	}
}

func (s *relaySession) addLink(remote string) *relayLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[remote]; ok {
		return nil
	}
	l := &relayLink{session: s, remote: remote}
	s.links[remote] = l
	return l
}

func (s *relaySession) link(remote string) *relayLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[remote]
}

func (s *relaySession) dropLink(remote string) {
	s.mu.Lock()
	l, ok := s.links[remote]
	if ok {
		delete(s.links, remote)
	}
	s.mu.Unlock()
	if ok {
		s.handler.OnDisconnect(l)
	}
}

// teardown drops every link after the room connection dies.
func (s *relaySession) teardown() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.relay.mu.Lock()
		delete(s.relay.sessions, s)
		s.relay.mu.Unlock()
	})
	s.mu.Lock()
	links := s.links
	s.links = map[string]*relayLink{}
	s.mu.Unlock()
	for _, l := range links {
		s.handler.OnDisconnect(l)
	}
}

type relayLink struct {
	session *relaySession
	remote  string
}

func (l *relayLink) RemoteKeyHex() string { return l.remote }

func (l *relayLink) Send(payload []byte) error {
	f := frame{
		Type: "data",
		From: l.session.relay.keyHex,
		To:   l.remote,
		Data: base64.StdEncoding.EncodeToString(payload),
	}
	select {
	case l.session.send <- f:
		return nil
	case <-l.session.done:
		return fmt.Errorf("session closed")
	}
}

func (l *relayLink) Close() error {
	l.session.dropLink(l.remote)
	return nil
}
