package quota

import (
	"sort"
	"sync"
	"time"

	"github.com/kakcer47/BotTG/internal/domain/rules"
	"github.com/kakcer47/BotTG/internal/metrics"
)

type PairKey struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

type Decision struct {
	Restrict bool
	// OverflowMessageID is the message to delete upstream when Restrict is set.
	OverflowMessageID int
}

type WindowConfig struct {
	Size               int
	TTL                time.Duration
	ComplaintThreshold int
}

type WindowStats struct {
	Entries    int       `json:"entries"`
	Restricted []PairKey `json:"restricted"`
	Size       int       `json:"size"`
	Complaints int       `json:"complaints"`
}

type windowEntry struct {
	mu         sync.Mutex
	messages   []int
	restricted bool
	lastSeen   time.Time
	evicted    bool
}

// Window tracks the last K message ids per chat member. It only decides
// policy; deleting and restricting upstream is up to the caller.
type Window struct {
	mu      sync.Mutex
	entries map[PairKey]*windowEntry
	size    int
	ttl     time.Duration
	now     func() time.Time

	complaints         map[messageKey]*complaintEntry
	complaintThreshold int
}

func NewWindow(cfg WindowConfig) *Window {
	if cfg.Size <= 0 {
		cfg.Size = rules.DefaultWindowSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = rules.DefaultWindowTTL
	}
	if cfg.ComplaintThreshold <= 0 {
		cfg.ComplaintThreshold = rules.DefaultComplaintThreshold
	}
	return &Window{
		entries:            make(map[PairKey]*windowEntry),
		size:               cfg.Size,
		ttl:                cfg.TTL,
		now:                time.Now,
		complaints:         make(map[messageKey]*complaintEntry),
		complaintThreshold: cfg.ComplaintThreshold,
	}
}

// acquire returns the locked live entry for key, creating it when create is set.
func (w *Window) acquire(key PairKey, create bool) *windowEntry {
	for {
		w.mu.Lock()
		entry, ok := w.entries[key]
		if !ok {
			if !create {
				w.mu.Unlock()
				return nil
			}
			entry = &windowEntry{}
			w.entries[key] = entry
			metrics.WindowEntries.Set(float64(len(w.entries)))
		}
		w.mu.Unlock()

		entry.mu.Lock()
		if !entry.evicted {
			return entry
		}
		entry.mu.Unlock()
	}
}

func (w *Window) RecordMessage(chatID, userID int64, messageID int) Decision {
	entry := w.acquire(PairKey{ChatID: chatID, UserID: userID}, true)
	defer entry.mu.Unlock()

	entry.lastSeen = w.now()
	entry.messages = append(entry.messages, messageID)
	if len(entry.messages) <= w.size {
		return Decision{}
	}

	entry.messages = entry.messages[:len(entry.messages)-1]
	if !entry.restricted {
		metrics.WindowRestrictionsTotal.Inc()
	}
	entry.restricted = true
	return Decision{Restrict: true, OverflowMessageID: messageID}
}

// ReleaseMessage drops messageID from the window and reports whether the
// member went from restricted to unrestricted.
func (w *Window) ReleaseMessage(chatID, userID int64, messageID int) bool {
	entry := w.acquire(PairKey{ChatID: chatID, UserID: userID}, false)
	if entry == nil {
		return false
	}
	defer entry.mu.Unlock()

	for i, id := range entry.messages {
		if id == messageID {
			entry.messages = append(entry.messages[:i], entry.messages[i+1:]...)
			break
		}
	}
	return entry.release(w.size)
}

// ReleaseOldest drops the oldest tracked message of the member, if any.
func (w *Window) ReleaseOldest(chatID, userID int64) bool {
	entry := w.acquire(PairKey{ChatID: chatID, UserID: userID}, false)
	if entry == nil {
		return false
	}
	defer entry.mu.Unlock()

	if len(entry.messages) > 0 {
		entry.messages = entry.messages[1:]
	}
	return entry.release(w.size)
}

func (e *windowEntry) release(size int) bool {
	if e.restricted && len(e.messages) < size {
		e.restricted = false
		return true
	}
	return false
}

// Sweep evicts members idle for longer than the TTL and returns the evicted
// ones that were still restricted. Stale complaint sets go with them.
func (w *Window) Sweep(now time.Time) []PairKey {
	w.mu.Lock()
	keys := make([]PairKey, 0, len(w.entries))
	entries := make([]*windowEntry, 0, len(w.entries))
	for key, entry := range w.entries {
		keys = append(keys, key)
		entries = append(entries, entry)
	}
	w.mu.Unlock()

	released := make([]PairKey, 0)
	for i, entry := range entries {
		entry.mu.Lock()
		if entry.evicted || now.Sub(entry.lastSeen) <= w.ttl {
			entry.mu.Unlock()
			continue
		}
		entry.evicted = true
		if entry.restricted {
			released = append(released, keys[i])
		}
		entry.mu.Unlock()

		w.mu.Lock()
		if w.entries[keys[i]] == entry {
			delete(w.entries, keys[i])
		}
		metrics.WindowEntries.Set(float64(len(w.entries)))
		w.mu.Unlock()
	}

	w.sweepComplaints(now)
	sortPairs(released)
	return released
}

func (w *Window) Stats() WindowStats {
	w.mu.Lock()
	keys := make([]PairKey, 0, len(w.entries))
	entries := make([]*windowEntry, 0, len(w.entries))
	for key, entry := range w.entries {
		keys = append(keys, key)
		entries = append(entries, entry)
	}
	w.mu.Unlock()

	stats := WindowStats{
		Entries:    len(keys),
		Restricted: make([]PairKey, 0),
		Size:       w.size,
		Complaints: w.complaintCount(),
	}
	for i, entry := range entries {
		entry.mu.Lock()
		if entry.restricted && !entry.evicted {
			stats.Restricted = append(stats.Restricted, keys[i])
		}
		entry.mu.Unlock()
	}
	sortPairs(stats.Restricted)
	return stats
}

func (w *Window) TTL() time.Duration {
	return w.ttl
}

func sortPairs(pairs []PairKey) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ChatID != pairs[j].ChatID {
			return pairs[i].ChatID < pairs[j].ChatID
		}
		return pairs[i].UserID < pairs[j].UserID
	})
}
