package store

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Key layout. One keyspace per logical table, colon separated:
//
//	pin:id:<pinID>                      -> Pin JSON
//	thread:<threadKey>:msg:<ts>-<seq>   -> StoredMessage JSON
//	msgidx:<threadKey>:<localID>        -> message storage key
//	readmark:<threadKey>                -> unix-ms read watermark
//	queue:<itemID>                      -> QueueItem JSON
//	contact:<contactID>                 -> Contact JSON
//	migrated:<pinValue>:<shortKey>      -> promoted pin value
//	identity                            -> Identity JSON
//
// threadKey is a pin value, optionally suffixed ":<shortKey>" for lobby
// sub-threads. Message keys sort by insertion time; seq disambiguates
// writes sharing a millisecond.
const (
	pinKeyPrefix     = "pin:id:"
	threadKeyPrefix  = "thread:"
	msgIdxKeyPrefix  = "msgidx:"
	readMarkPrefix   = "readmark:"
	queueKeyPrefix   = "queue:"
	contactKeyPrefix = "contact:"
	migratedPrefix   = "migrated:"
	identityKey      = "identity"
)

var keySeq uint64

func pinKey(id string) string { return pinKeyPrefix + id }

func msgPrefix(threadKey string) string {
	return threadKeyPrefix + threadKey + ":msg:"
}

func msgKey(threadKey string, tsMs int64) string {
	s := atomic.AddUint64(&keySeq, 1)
	return fmt.Sprintf("%s%020d-%06d", msgPrefix(threadKey), tsMs, s)
}

func msgIdxKey(threadKey, localID string) string {
	return msgIdxKeyPrefix + threadKey + ":" + localID
}

func readMarkKey(threadKey string) string { return readMarkPrefix + threadKey }

func queueKey(id string) string { return queueKeyPrefix + id }

func contactKey(id string) string { return contactKeyPrefix + id }

func migratedKey(lobbyPinValue, shortKey string) string {
	return migratedPrefix + SubThreadKey(lobbyPinValue, shortKey)
}

// SubThreadKey builds the composite key for a lobby sender's sub-thread.
func SubThreadKey(pinValue, shortKey string) string {
	return pinValue + ":" + shortKey
}

// splitSubThread splits a sub-thread key back into (pinValue, shortKey).
// ok is false for plain (non-lobby) thread keys.
func splitSubThread(threadKey string) (pinValue, shortKey string, ok bool) {
	i := strings.IndexByte(threadKey, ':')
	if i < 0 {
		return threadKey, "", false
	}
	return threadKey[:i], threadKey[i+1:], true
}

func nowMs() int64 { return time.Now().UnixMilli() }
