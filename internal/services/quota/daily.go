package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/domain/rules"
)

type DailyStore interface {
	ResetDailyCounterIfStale(ctx context.Context, userID int64, today string) (model.User, bool, error)
	IncrementDailyCounter(ctx context.Context, userID int64, delta int) (model.User, error)
}

type UserCache interface {
	PutUser(user model.User)
}

type Config struct {
	Timezone string
}

type Usage struct {
	PostsToday int       `json:"posts_today"`
	DailyQuota int       `json:"daily_quota"`
	PostsLeft  int       `json:"posts_left"`
	ResetAt    time.Time `json:"reset_at"`
}

// Tracker enforces the per-user daily post quota. Callers serialize
// CanPost and RecordPost per user.
type Tracker struct {
	store  DailyStore
	cache  UserCache
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(store DailyStore, cache UserCache, cfg Config, logger *zap.Logger) *Tracker {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loaded, err := time.LoadLocation(tz); err == nil {
			loc = loaded
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		store:  store,
		cache:  cache,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// CanPost resets a stale counter on first access of the day, then reports
// whether one more post fits the quota.
func (t *Tracker) CanPost(ctx context.Context, userID int64) (Usage, bool, error) {
	now := t.now()
	user, reset, err := t.store.ResetDailyCounterIfStale(ctx, userID, rules.DayKey(now, t.loc))
	if err != nil {
		return Usage{}, false, fmt.Errorf("reset daily counter: %w", err)
	}
	if reset {
		t.logger.Debug("daily post counter reset", zap.Int64("user_id", userID))
	}
	t.remember(user)

	usage := t.usage(user, now)
	return usage, user.PostsToday < quotaOf(user), nil
}

func (t *Tracker) RecordPost(ctx context.Context, userID int64) (Usage, error) {
	user, err := t.store.IncrementDailyCounter(ctx, userID, 1)
	if err != nil {
		return Usage{}, fmt.Errorf("increment daily counter: %w", err)
	}
	t.remember(user)
	return t.usage(user, t.now()), nil
}

// Refund returns a slot taken by RecordPost when the post was not stored.
func (t *Tracker) Refund(ctx context.Context, userID int64) (Usage, error) {
	user, err := t.store.IncrementDailyCounter(ctx, userID, -1)
	if err != nil {
		return Usage{}, fmt.Errorf("refund daily counter: %w", err)
	}
	t.remember(user)
	return t.usage(user, t.now()), nil
}

func (t *Tracker) remember(user model.User) {
	if t.cache != nil {
		t.cache.PutUser(user)
	}
}

func (t *Tracker) usage(user model.User, now time.Time) Usage {
	quota := quotaOf(user)
	left := quota - user.PostsToday
	if left < 0 {
		left = 0
	}
	return Usage{
		PostsToday: user.PostsToday,
		DailyQuota: quota,
		PostsLeft:  left,
		ResetAt:    rules.NextResetAt(now, t.loc),
	}
}

func quotaOf(user model.User) int {
	if user.DailyQuota > 0 {
		return user.DailyQuota
	}
	return rules.DefaultDailyPostLimit
}
