// Package protocol implements the versioned wire envelope exchanged over
// an established channel: one JSON object per message.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the only wire protocol version peers speak.
const Version = "1"

// Scheme is the URI scheme for number+pin addresses.
const Scheme = "0x0"

// Kind enumerates the envelope kinds. The set is closed: adding a kind is
// a compile-time decision, and every consumer switches exhaustively.
type Kind string

const (
	KindMessage    Kind = "message"
	KindPinMigrate Kind = "pin_migrate"
	KindPing       Kind = "ping"
	KindFile       Kind = "file"
)

// Envelope is the decoded wire unit.
type Envelope interface {
	Kind() Kind
}

// Message carries application text.
type Message struct {
	Content   string
	Timestamp int64
}

func (Message) Kind() Kind { return KindMessage }

// PinMigrate tells the peer our pin rotated; they must re-derive the
// channel secret from NewPin and re-key the thread on their end.
type PinMigrate struct {
	NewPin    string
	NewURI    string
	Timestamp int64
}

func (PinMigrate) Kind() Kind { return KindPinMigrate }

// Ping is a liveness probe with no business payload.
type Ping struct{}

func (Ping) Kind() Kind { return KindPing }

// File carries relayed file metadata plus the base64 payload. The payload
// is for the receiving UI only and is never persisted.
type File struct {
	Filename   string
	MimeType   string
	DataBase64 string
	Timestamp  int64
}

func (File) Kind() Kind { return KindFile }

// wire is the flat JSON shape shared by every kind.
type wire struct {
	Version   string `json:"version,omitempty"`
	Type      Kind   `json:"type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Content   string `json:"content,omitempty"`
	NewPin    string `json:"newPin,omitempty"`
	NewURI    string `json:"newUri,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Data      string `json:"data,omitempty"`
}

func nowMs() int64 { return time.Now().UnixMilli() }

func marshal(w wire) []byte {
	b, err := json.Marshal(w)
	if err != nil {
		// wire contains only strings and integers; Marshal cannot fail.
		panic(err)
	}
	return b
}

// EncodeMessage frames application text for the wire.
func EncodeMessage(content string) []byte {
	return marshal(wire{Version: Version, Type: KindMessage, Content: content, Timestamp: nowMs()})
}

// URI renders the shareable channel address for (number, pin).
func URI(number, pinValue string) string {
	return fmt.Sprintf("%s://%s/%s", Scheme, number, pinValue)
}

// EncodePinMigrate frames a rotation notice carrying the replacement pin
// and the full re-derived address.
func EncodePinMigrate(myNumber, newPinValue string) []byte {
	return marshal(wire{
		Version:   Version,
		Type:      KindPinMigrate,
		NewPin:    newPinValue,
		NewURI:    URI(myNumber, newPinValue),
		Timestamp: nowMs(),
	})
}

// EncodePing frames a liveness probe.
func EncodePing() []byte {
	return marshal(wire{Version: Version, Type: KindPing})
}

// EncodeFile frames file metadata plus its base64 payload.
func EncodeFile(filename, mimeType, dataBase64 string) []byte {
	return marshal(wire{
		Version:   Version,
		Type:      KindFile,
		Filename:  filename,
		MimeType:  mimeType,
		Data:      dataBase64,
		Timestamp: nowMs(),
	})
}

// Decode parses wire bytes into an envelope. It is total: garbage bytes, a
// structure lacking both version and type, or an unknown kind all yield
// (nil, false) so transports can drop noise without surfacing errors to
// business logic. A partially populated envelope is never returned.
func Decode(b []byte) (Envelope, bool) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, false
	}
	if w.Version == "" && w.Type == "" {
		return nil, false
	}
	switch w.Type {
	case KindMessage:
		return Message{Content: w.Content, Timestamp: w.Timestamp}, true
	case KindPinMigrate:
		return PinMigrate{NewPin: w.NewPin, NewURI: w.NewURI, Timestamp: w.Timestamp}, true
	case KindPing:
		return Ping{}, true
	case KindFile:
		return File{Filename: w.Filename, MimeType: w.MimeType, DataBase64: w.Data, Timestamp: w.Timestamp}, true
	default:
		return nil, false
	}
}
