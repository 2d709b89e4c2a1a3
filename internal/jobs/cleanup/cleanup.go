package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/services/quota"
)

type Sweeper interface {
	Sweep(now time.Time) []quota.PairKey
}

type Unrestricter interface {
	Unrestrict(ctx context.Context, chatID, userID int64) error
}

// Job evicts idle chat members from the activity window and lifts the
// upstream restriction of the ones that were still restricted. Pairs whose
// unrestrict call fails are retried on the next run.
type Job struct {
	window       Sweeper
	unrestricter Unrestricter
	now          func() time.Time
	logger       *zap.Logger

	mu    sync.Mutex
	retry []quota.PairKey
}

func NewWindowSweepJob(window Sweeper, unrestricter Unrestricter, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		window:       window,
		unrestricter: unrestricter,
		now:          time.Now,
		logger:       logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.window == nil {
		return nil
	}

	released := j.window.Sweep(j.now())

	j.mu.Lock()
	pairs := append(j.retry, released...)
	j.retry = nil
	j.mu.Unlock()

	if len(pairs) == 0 {
		return nil
	}
	if j.unrestricter == nil {
		j.logger.Info("window sweep evicted restricted members", zap.Int("released", len(pairs)))
		return nil
	}

	failed := make([]quota.PairKey, 0)
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			failed = append(failed, pairs[i:]...)
			break
		}
		if err := j.unrestricter.Unrestrict(ctx, pair.ChatID, pair.UserID); err != nil {
			j.logger.Warn("failed to lift restriction",
				zap.Int64("chat_id", pair.ChatID),
				zap.Int64("user_id", pair.UserID),
				zap.Error(err),
			)
			failed = append(failed, pair)
		}
	}

	if len(failed) > 0 {
		j.mu.Lock()
		j.retry = append(j.retry, failed...)
		j.mu.Unlock()
	}

	j.logger.Info("window sweep completed",
		zap.Int("released", len(pairs)-len(failed)),
		zap.Int("retry", len(failed)),
	)
	return nil
}

func (j *Job) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.retry)
}
