// Package transport abstracts the peer rendezvous layer. A channel is
// identified by a 32-byte topic, a one-way hash of the channel secret;
// joining a topic yields links to every peer that derived the same
// secret. Payloads cross the transport already sealed, so neither the
// topic nor the traffic gives relays anything to read. The daemon core
// only ever sees this surface, so swarm backends and the in-memory
// loopback used in tests are interchangeable.
package transport

import "context"

// Link is one live peer connection. Payloads are delivered whole and in
// order per link.
type Link interface {
	// RemoteKeyHex is the peer's public key, lowercase hex.
	RemoteKeyHex() string
	Send(payload []byte) error
	Close() error
}

// Handler receives link lifecycle and traffic. Callbacks for a single
// link are serialized; callbacks across links may be concurrent.
type Handler interface {
	OnConnect(Link)
	OnPayload(Link, []byte)
	OnDisconnect(Link)
}

// Session is one joined topic.
type Session interface {
	Topic() [32]byte
	Links() []Link
	// Leave closes every link and stops discovery for the topic.
	Leave() error
}

// Transport joins topics on behalf of one local identity.
type Transport interface {
	// LocalKeyHex is this node's public key, lowercase hex.
	LocalKeyHex() string
	Join(ctx context.Context, topic [32]byte, h Handler) (Session, error)
	Close() error
}
