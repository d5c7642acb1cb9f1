package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"zerozero/pkg/logger"
	"zerozero/pkg/models"
	"zerozero/pkg/utils"
)

// DefaultQueueTTL bounds how long an undelivered message waits for its
// peer before it is dropped.
const DefaultQueueTTL = 24 * time.Hour

// Queue holds outbound messages whose peer was offline at send time.
// Items survive restarts; delivery removes them, the retention sweep
// purges the expired ones.
type Queue struct {
	s  *Store
	mu sync.Mutex
}

func NewQueue(s *Store) *Queue {
	return &Queue{s: s}
}

// AppendParams describes one message to park.
type QueueAppendParams struct {
	Type        models.QueueItemType
	PinID       string
	TheirNumber string
	Pin         string
	Content     string
	LocalID     string
	// TTL of 0 falls back to DefaultQueueTTL.
	TTL time.Duration
}

// Append parks a message and returns the stored item.
func (q *Queue) Append(params QueueAppendParams) (models.QueueItem, error) {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultQueueTTL
	}
	now := nowMs()
	item := models.QueueItem{
		ID:          utils.GenID("q"),
		Type:        params.Type,
		PinID:       params.PinID,
		TheirNumber: params.TheirNumber,
		Pin:         params.Pin,
		Content:     params.Content,
		LocalID:     params.LocalID,
		Timestamp:   now,
		ExpiresAt:   now + ttl.Milliseconds(),
	}
	b, err := json.Marshal(item)
	if err != nil {
		return models.QueueItem{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.s.set(queueKey(item.ID), b); err != nil {
		return models.QueueItem{}, err
	}
	queueDepth.Inc()
	return item, nil
}

// LoadAll returns every parked item, oldest first. Expired items are
// included; callers deciding delivery should check Expired themselves or
// rely on the purge sweep.
func (q *Queue) LoadAll() ([]models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []models.QueueItem{}
	err := q.s.scanPrefix(queueKeyPrefix, func(_ string, val []byte) error {
		var item models.QueueItem
		if err := json.Unmarshal(val, &item); err != nil {
			logger.Warn("corrupt_queue_record", "error", err)
			return nil
		}
		out = append(out, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	queueDepth.Set(float64(len(out)))
	return out, nil
}

// Remove deletes a delivered or abandoned item. Removing an unknown id
// is a no-op and leaves the depth gauge alone.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok, err := q.s.get(queueKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := q.s.delete(queueKey(id)); err != nil {
		return err
	}
	queueDepth.Dec()
	return nil
}

// PurgeExpired drops every item past its deadline and reports how many
// went.
func (q *Queue) PurgeExpired() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := nowMs()
	var doomed []string
	err := q.s.scanPrefix(queueKeyPrefix, func(key string, val []byte) error {
		var item models.QueueItem
		if err := json.Unmarshal(val, &item); err != nil {
			doomed = append(doomed, key)
			return nil
		}
		if item.Expired(now) {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range doomed {
		if err := q.s.delete(key); err != nil {
			return 0, err
		}
	}
	if n := len(doomed); n > 0 {
		queuePurged.Add(float64(n))
		queueDepth.Sub(float64(n))
		logger.Info("queue_purged", "count", n)
	}
	return len(doomed), nil
}
