package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kakcer47/BotTG/internal/services/quota"
)

type fakeUnrestricter struct {
	calls []quota.PairKey
	fail  map[quota.PairKey]bool
}

func (f *fakeUnrestricter) Unrestrict(_ context.Context, chatID, userID int64) error {
	key := quota.PairKey{ChatID: chatID, UserID: userID}
	f.calls = append(f.calls, key)
	if f.fail[key] {
		return errors.New("telegram unavailable")
	}
	return nil
}

func restrictedWindow(t *testing.T, pairs ...quota.PairKey) *quota.Window {
	t.Helper()
	window := quota.NewWindow(quota.WindowConfig{Size: 1, TTL: time.Hour})
	for _, pair := range pairs {
		window.RecordMessage(pair.ChatID, pair.UserID, 1)
		if d := window.RecordMessage(pair.ChatID, pair.UserID, 2); !d.Restrict {
			t.Fatalf("expected %v to be restricted", pair)
		}
	}
	return window
}

func TestRunLiftsRestrictionsOfEvictedMembers(t *testing.T) {
	a := quota.PairKey{ChatID: -1, UserID: 10}
	b := quota.PairKey{ChatID: -1, UserID: 11}
	window := restrictedWindow(t, a, b)
	tg := &fakeUnrestricter{}

	job := NewWindowSweepJob(window, tg, nil)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run sweep job: %v", err)
	}
	if len(tg.calls) != 2 || tg.calls[0] != a || tg.calls[1] != b {
		t.Fatalf("unexpected unrestrict calls: %v", tg.calls)
	}
	if window.Stats().Entries != 0 {
		t.Fatalf("expected idle entries to be evicted")
	}
}

func TestRunKeepsFreshMembers(t *testing.T) {
	window := restrictedWindow(t, quota.PairKey{ChatID: -1, UserID: 10})
	tg := &fakeUnrestricter{}

	job := NewWindowSweepJob(window, tg, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run sweep job: %v", err)
	}
	if len(tg.calls) != 0 {
		t.Fatalf("fresh member must stay restricted, got calls %v", tg.calls)
	}
}

func TestRunRetriesFailedUnrestrict(t *testing.T) {
	pair := quota.PairKey{ChatID: -1, UserID: 10}
	window := restrictedWindow(t, pair)
	tg := &fakeUnrestricter{fail: map[quota.PairKey]bool{pair: true}}

	job := NewWindowSweepJob(window, tg, nil)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if job.Pending() != 1 {
		t.Fatalf("expected failed pair to be queued for retry, got %d", job.Pending())
	}

	tg.fail = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if job.Pending() != 0 || len(tg.calls) != 2 {
		t.Fatalf("expected retry to succeed: pending=%d calls=%v", job.Pending(), tg.calls)
	}
}
