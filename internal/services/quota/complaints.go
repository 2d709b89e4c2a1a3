package quota

import (
	"time"

	"github.com/kakcer47/BotTG/internal/domain/rules"
)

// maxComplaintSets caps the tracked messages between sweeps.
const maxComplaintSets = 10000

type messageKey struct {
	chatID    int64
	messageID int
}

type complaintEntry struct {
	authorID    int64
	complainers map[int64]struct{}
	lastSeen    time.Time
}

type ComplaintResult struct {
	AuthorID  int64
	Count     int
	Threshold int
	Duplicate bool
	Own       bool
	// Reached is set once per message; its complaint set is dropped with it.
	Reached bool
}

// Complain records complainerID against a group message. Each member counts
// once per message, and the author cannot complain about their own message.
func (w *Window) Complain(chatID int64, messageID int, authorID, complainerID int64) ComplaintResult {
	key := messageKey{chatID: chatID, messageID: messageID}

	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.complaints[key]
	if !ok {
		if len(w.complaints) >= maxComplaintSets {
			w.evictOldestComplaintLocked()
		}
		entry = &complaintEntry{authorID: authorID, complainers: make(map[int64]struct{}, w.complaintThreshold)}
		w.complaints[key] = entry
	}
	entry.lastSeen = w.now()

	result := ComplaintResult{AuthorID: entry.authorID, Threshold: w.complaintThreshold}
	if complainerID == entry.authorID {
		result.Count = len(entry.complainers)
		result.Own = true
		return result
	}
	if _, seen := entry.complainers[complainerID]; seen {
		result.Count = len(entry.complainers)
		result.Duplicate = true
		return result
	}

	entry.complainers[complainerID] = struct{}{}
	result.Count = len(entry.complainers)
	if rules.ComplaintThresholdReached(result.Count, w.complaintThreshold) {
		result.Reached = true
		delete(w.complaints, key)
	}
	return result
}

func (w *Window) evictOldestComplaintLocked() {
	var (
		oldest messageKey
		seen   time.Time
		found  bool
	)
	for key, entry := range w.complaints {
		if !found || entry.lastSeen.Before(seen) {
			oldest, seen, found = key, entry.lastSeen, true
		}
	}
	if found {
		delete(w.complaints, oldest)
	}
}

func (w *Window) sweepComplaints(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for key, entry := range w.complaints {
		if now.Sub(entry.lastSeen) > w.ttl {
			delete(w.complaints, key)
		}
	}
}

func (w *Window) complaintCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.complaints)
}
