package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"zerozero/pkg/channel"
	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	"zerozero/pkg/utils"
)

// Threads persists per-pin message history. A direct pin owns exactly one
// thread keyed by its value; a lobby pin fans out into sub-threads keyed
// by value+":"+shortKey, one per distinct sender identity. Records are
// append-only; the queued->delivered status flip is the single mutation.
type Threads struct {
	s    *Store
	pins *Pins
	mu   sync.RWMutex
}

// NewThreads builds the thread store over s. The pin registry is
// consulted so appends against nonexistent pins fail fast.
func NewThreads(s *Store, pins *Pins) *Threads {
	return &Threads{s: s, pins: pins}
}

// AppendParams carries one inbound or outbound record.
type AppendParams struct {
	From    string
	Content string
	IsMine  bool
	// LocalID is the sender-side idempotency key for outgoing messages.
	LocalID string
	// PubKeyHex routes lobby traffic into the sender's sub-thread. It is
	// ignored for direct pins.
	PubKeyHex string
	// Status is set on outgoing records (queued or delivered).
	Status models.MessageStatus
	// File metadata for relayed file envelopes.
	Kind     string
	Filename string
	MimeType string
	// SentAt is the peer-declared send instant (unix ms) on inbound
	// records. Kept as display metadata; the record is always stamped and
	// ordered by the local clock.
	SentAt int64
}

// resolveKey maps (pinValue, pubKeyHex) to the concrete thread key,
// verifying the pin exists.
func (t *Threads) resolveKey(pinValue, pubKeyHex string) (string, error) {
	pin, err := t.pins.FindByValue(pinValue)
	if err != nil {
		return "", fmt.Errorf("append to unknown pin: %w", err)
	}
	if pubKeyHex != "" && pin.Type == models.PinLobby {
		return SubThreadKey(pinValue, channel.ShortKey(pubKeyHex)), nil
	}
	return pinValue, nil
}

// Append files a record under the resolved thread key and returns the
// stored form. Appending to a pin that does not exist is an error.
func (t *Threads) Append(pinValue string, params AppendParams) (models.StoredMessage, error) {
	key, err := t.resolveKey(pinValue, params.PubKeyHex)
	if err != nil {
		return models.StoredMessage{}, err
	}
	return t.AppendKey(key, params)
}

// AppendKey files a record under an explicit thread key. Contact threads
// are keyed by contact id and bypass pin resolution.
func (t *Threads) AppendKey(key string, params AppendParams) (models.StoredMessage, error) {
	ts := nowMs()
	msg := models.StoredMessage{
		ID:        utils.GenID("msg"),
		LocalID:   params.LocalID,
		ThreadKey: key,
		From:      params.From,
		Content:   params.Content,
		Kind:      params.Kind,
		Filename:  params.Filename,
		MimeType:  params.MimeType,
		IsMine:    params.IsMine,
		Timestamp: ts,
		SentAt:    params.SentAt,
		Status:    params.Status,
	}
	if params.PubKeyHex != "" {
		msg.PubKeyHex = channel.ShortKey(params.PubKeyHex)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := encodeMessage(msg)
	if err != nil {
		return models.StoredMessage{}, err
	}
	storageKey := msgKey(key, ts)
	if err := t.s.set(storageKey, b); err != nil {
		return models.StoredMessage{}, err
	}
	if msg.LocalID != "" {
		if err := t.s.set(msgIdxKey(key, msg.LocalID), []byte(storageKey)); err != nil {
			return models.StoredMessage{}, err
		}
	}
	messagesStored.Inc()
	return msg, nil
}

// ListKey returns the history for a concrete thread key, oldest first,
// capped at limit (0 = unlimited). An empty thread is an empty slice.
func (t *Threads) ListKey(threadKey string, limit int) []models.StoredMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []models.StoredMessage{}
	_ = t.s.scanPrefix(msgPrefix(threadKey), func(_ string, val []byte) error {
		m, err := decodeMessage(val)
		if err != nil {
			logger.Warn("corrupt_message_record", "thread", threadKey, "error", err)
			return nil
		}
		out = append(out, m)
		return nil
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// List resolves (pinValue, pubKeyHex) the same way Append does and
// returns that thread's history. Listing never errors; an unknown pin
// yields an empty slice.
func (t *Threads) List(pinValue string, limit int, pubKeyHex string) []models.StoredMessage {
	key := pinValue
	if pubKeyHex != "" {
		key = SubThreadKey(pinValue, channel.ShortKey(pubKeyHex))
	}
	return t.ListKey(key, limit)
}

// GetLatest returns the newest record in the thread, or nil.
func (t *Threads) GetLatest(threadKey string) *models.StoredMessage {
	msgs := t.ListKey(threadKey, 0)
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

// readWatermark returns the unix-ms instant up to which the thread has
// been acknowledged as read.
func (t *Threads) readWatermark(threadKey string) int64 {
	v, ok, err := t.s.get(readMarkKey(threadKey))
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.ParseInt(string(v), 10, 64)
	return n
}

// CountUnread counts received records newer than the read watermark.
func (t *Threads) CountUnread(threadKey string) int {
	wm := t.readWatermark(threadKey)
	n := 0
	for _, m := range t.ListKey(threadKey, 0) {
		if !m.IsMine && m.Timestamp > wm {
			n++
		}
	}
	return n
}

// MarkRead acknowledges everything currently in the thread. Messages are
// not rewritten; the acknowledgment is a per-thread watermark.
func (t *Threads) MarkRead(threadKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.set(readMarkKey(threadKey), []byte(strconv.FormatInt(nowMs(), 10)))
}

// HasLocalReply reports whether the local user has ever sent into the
// thread. Lobby migration triggers on the first transition false->true.
func (t *Threads) HasLocalReply(threadKey string) bool {
	for _, m := range t.ListKey(threadKey, 0) {
		if m.IsMine {
			return true
		}
	}
	return false
}

// MarkDelivered flips an outgoing record from queued to delivered,
// located by its idempotency key. Idempotent: flipping an already
// delivered record, or an unknown localID, is a no-op.
func (t *Threads) MarkDelivered(threadKey, localID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idxVal, ok, err := t.s.get(msgIdxKey(threadKey, localID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	raw, ok, err := t.s.get(string(idxVal))
	if err != nil || !ok {
		return err
	}
	m, err := decodeMessage(raw)
	if err != nil {
		return fmt.Errorf("corrupt message record: %w", err)
	}
	if m.Status == models.StatusDelivered {
		return nil
	}
	m.Status = models.StatusDelivered
	b, err := encodeMessage(m)
	if err != nil {
		return err
	}
	return t.s.set(string(idxVal), b)
}

// ListLobbyThreads returns one summary per distinct sender identity ever
// seen under the lobby pin: the requests inbox. Sub-threads already
// promoted to contacts no longer exist here.
func (t *Threads) ListLobbyThreads(pinValue string) []models.ThreadSummary {
	t.mu.RLock()
	byShort := map[string][]models.StoredMessage{}
	prefix := threadKeyPrefix + pinValue + ":"
	_ = t.s.scanPrefix(prefix, func(key string, val []byte) error {
		rest := key[len(prefix):]
		// skip the pin's own thread records ("msg:..."), keep sub-threads
		// ("<short>:msg:...")
		if len(rest) >= 4 && rest[:4] == "msg:" {
			return nil
		}
		m, err := decodeMessage(val)
		if err != nil {
			return nil
		}
		_, short, ok := splitSubThread(m.ThreadKey)
		if !ok {
			return nil
		}
		byShort[short] = append(byShort[short], m)
		return nil
	})
	t.mu.RUnlock()

	out := make([]models.ThreadSummary, 0, len(byShort))
	for short, msgs := range byShort {
		key := SubThreadKey(pinValue, short)
		wm := t.readWatermark(key)
		unread := 0
		for _, m := range msgs {
			if !m.IsMine && m.Timestamp > wm {
				unread++
			}
		}
		latest := msgs[len(msgs)-1]
		out = append(out, models.ThreadSummary{
			PinValue:  pinValue,
			ShortKey:  short,
			ThreadKey: key,
			Count:     len(msgs),
			Unread:    unread,
			Latest:    &latest,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Latest.Timestamp > out[j].Latest.Timestamp
	})
	return out
}

// Migrate promotes a lobby sub-thread into the thread of a freshly minted
// direct pin: the history is carried over (timestamps preserved, thread
// keys rewritten) and the sub-thread is removed from the requests view.
func (t *Threads) Migrate(lobbyPinValue, shortKey, newPinValue string) error {
	oldKey := SubThreadKey(lobbyPinValue, shortKey)
	history := t.ListKey(oldKey, 0)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range history {
		m.ThreadKey = newPinValue
		b, err := encodeMessage(m)
		if err != nil {
			return err
		}
		storageKey := msgKey(newPinValue, m.Timestamp)
		if err := t.s.set(storageKey, b); err != nil {
			return err
		}
		if m.LocalID != "" {
			if err := t.s.set(msgIdxKey(newPinValue, m.LocalID), []byte(storageKey)); err != nil {
				return err
			}
		}
	}
	if err := t.s.deletePrefix(msgPrefix(oldKey)); err != nil {
		return err
	}
	if err := t.s.deletePrefix(msgIdxKeyPrefix + oldKey + ":"); err != nil {
		return err
	}
	if err := t.s.delete(readMarkKey(oldKey)); err != nil {
		return err
	}
	// remember where the sub-thread went so later replies against the
	// lobby address route to the promoted pin instead of migrating again
	if err := t.s.set(migratedKey(lobbyPinValue, shortKey), []byte(newPinValue)); err != nil {
		return err
	}
	logger.Info("lobby_thread_migrated", "from", oldKey, "messages", len(history))
	return nil
}

// MigratedTo reports the pin value a lobby sub-thread was promoted to,
// if it ever was.
func (t *Threads) MigratedTo(lobbyPinValue, shortKey string) (string, bool) {
	v, ok, err := t.s.get(migratedKey(lobbyPinValue, shortKey))
	if err != nil || !ok {
		return "", false
	}
	return string(v), true
}
