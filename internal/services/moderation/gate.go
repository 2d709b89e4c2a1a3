// Package moderation owns the post lifecycle:
// pending -> approved|rejected -> deleted.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/domain/rules"
	"github.com/kakcer47/BotTG/internal/metrics"
	"github.com/kakcer47/BotTG/internal/pkg/keylock"
)

const (
	deletedByModeratorText = "🗑 Ваше объявление было удалено модератором"
	deletedByReportsText   = "🗑 Ваше объявление удалено из-за жалоб пользователей"
	defaultPendingLimit    = 20
)

type Store interface {
	InsertPost(ctx context.Context, authorID int64, draft model.PostDraft, status enums.PostStatus) (model.Post, error)
	UpdatePostStatus(ctx context.Context, id int64, from, to enums.PostStatus) (model.Post, error)
	AddReport(ctx context.Context, postID, reporterID int64, reason string) (int, error)
	ListPendingPosts(ctx context.Context, limit int) ([]model.Post, error)
}

type PostCache interface {
	GetPost(ctx context.Context, id int64) (model.Post, error)
	PutPost(post model.Post)
	InvalidatePost(id int64)
}

type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

type Notifier interface {
	RequestModeration(ctx context.Context, post model.Post) error
	NotifyUser(ctx context.Context, userID int64, text string) error
}

type Config struct {
	// ModerationEnabled is false when no moderation chat is configured;
	// submissions are then approved immediately.
	ModerationEnabled  bool
	ComplaintThreshold int
}

type ReportResult struct {
	PostID         int64
	ComplaintCount int
	Deleted        bool
}

type Gate struct {
	store     Store
	cache     PostCache
	publisher Publisher
	notifier  Notifier
	posts     *keylock.Locker
	cfg       Config
	logger    *zap.Logger
}

// NewGate shares posts with every other writer of post rows so that status
// changes, like counts and reports on one post are serialized.
func NewGate(store Store, cache PostCache, publisher Publisher, notifier Notifier, posts *keylock.Locker, cfg Config, logger *zap.Logger) *Gate {
	if cfg.ComplaintThreshold <= 0 {
		cfg.ComplaintThreshold = rules.DefaultComplaintThreshold
	}
	if posts == nil {
		posts = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.ModerationEnabled {
		logger.Warn("moderation chat is not configured, new posts are auto-approved")
	}

	return &Gate{
		store:     store,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		posts:     posts,
		cfg:       cfg,
		logger:    logger,
	}
}

func (g *Gate) AutoApprove() bool {
	return !g.cfg.ModerationEnabled
}

// Submit stores a new post. With moderation enabled it stays pending and a
// review request goes to the moderators; a failed request leaves it pending
// and visible through Pending.
func (g *Gate) Submit(ctx context.Context, authorID int64, draft model.PostDraft) (model.Post, error) {
	status := enums.PostStatusPending
	if g.AutoApprove() {
		status = enums.PostStatusApproved
	}

	post, err := g.store.InsertPost(ctx, authorID, draft, status)
	if err != nil {
		return model.Post{}, fmt.Errorf("insert post: %w", err)
	}

	unlock := g.posts.Lock(post.ID)
	g.cache.PutPost(post)
	if status == enums.PostStatusApproved {
		metrics.ModerationTransitionsTotal.WithLabelValues(string(status)).Inc()
		g.publish(ctx, model.PostUpdated{Post: post})
	}
	unlock()

	if status == enums.PostStatusPending && g.notifier != nil {
		if err := g.notifier.RequestModeration(ctx, post); err != nil {
			g.logger.Warn("moderation request not delivered, post stays pending",
				zap.Int64("post_id", post.ID), zap.Error(err))
		}
	}
	return post, nil
}

func (g *Gate) Approve(ctx context.Context, postID int64) (model.Post, error) {
	unlock := g.posts.Lock(postID)
	defer unlock()

	post, err := g.transition(ctx, postID, enums.PostStatusPending, enums.PostStatusApproved)
	if err != nil {
		return model.Post{}, fmt.Errorf("approve post: %w", err)
	}
	g.publish(ctx, model.PostUpdated{Post: post})
	return post, nil
}

// Reject moves a pending post to rejected. The broadcast carries only the id
// and status so rejected content never reaches other viewers.
func (g *Gate) Reject(ctx context.Context, postID int64, reasonCode string) (model.Post, error) {
	unlock := g.posts.Lock(postID)
	post, err := g.transition(ctx, postID, enums.PostStatusPending, enums.PostStatusRejected)
	if err != nil {
		unlock()
		return model.Post{}, fmt.Errorf("reject post: %w", err)
	}
	g.publish(ctx, model.PostUpdated{Post: model.Post{ID: post.ID, Status: post.Status}})
	unlock()

	g.notify(ctx, post.AuthorID, RejectReasonText(reasonCode))
	return post, nil
}

// Report records one complaint per reporter. The report that reaches the
// threshold deletes the post; later reports see it as gone.
func (g *Gate) Report(ctx context.Context, postID, reporterID int64, reason string) (ReportResult, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > enums.MaxReportReasonLength {
		return ReportResult{}, errs.Validation("report reason exceeds %d characters", enums.MaxReportReasonLength)
	}

	unlock := g.posts.Lock(postID)
	post, err := g.cache.GetPost(ctx, postID)
	if err != nil {
		unlock()
		return ReportResult{}, fmt.Errorf("report post: %w", err)
	}
	if post.Status != enums.PostStatusApproved {
		unlock()
		return ReportResult{}, fmt.Errorf("report post: %w", errs.ErrNotFound)
	}

	count, err := g.store.AddReport(ctx, postID, reporterID, reason)
	if err != nil {
		unlock()
		return ReportResult{PostID: postID, ComplaintCount: post.ComplaintCount}, fmt.Errorf("report post: %w", err)
	}
	metrics.ReportsTotal.Inc()
	post.ComplaintCount = count
	g.cache.PutPost(post)

	result := ReportResult{PostID: postID, ComplaintCount: count}
	if rules.ComplaintThresholdReached(count, g.cfg.ComplaintThreshold) {
		if _, err := g.deleteLocked(ctx, post, enums.DeleteReasonComplaintThreshold); err != nil {
			unlock()
			return result, fmt.Errorf("delete reported post: %w", err)
		}
		result.Deleted = true
	}
	unlock()

	if result.Deleted {
		g.logger.Info("post deleted by complaints", zap.Int64("post_id", postID), zap.Int("complaints", count))
		g.notify(ctx, post.AuthorID, deletedByReportsText)
	}
	return result, nil
}

// Delete removes an approved or rejected post. A nil actor is an
// administrative delete; otherwise only the author may delete.
func (g *Gate) Delete(ctx context.Context, postID int64, actor *int64, reason enums.DeleteReason) (model.Post, error) {
	unlock := g.posts.Lock(postID)
	post, err := g.cache.GetPost(ctx, postID)
	if err != nil {
		unlock()
		return model.Post{}, fmt.Errorf("delete post: %w", err)
	}
	if actor != nil && *actor != post.AuthorID {
		unlock()
		return model.Post{}, fmt.Errorf("delete post: %w", errs.ErrForbidden)
	}
	if actor != nil {
		reason = enums.DeleteReasonAuthor
	} else if reason == "" || reason == enums.DeleteReasonAuthor {
		reason = enums.DeleteReasonModerator
	}

	deleted, err := g.deleteLocked(ctx, post, reason)
	unlock()
	if err != nil {
		return model.Post{}, fmt.Errorf("delete post: %w", err)
	}

	switch reason {
	case enums.DeleteReasonModerator:
		g.notify(ctx, post.AuthorID, deletedByModeratorText)
	case enums.DeleteReasonComplaintThreshold:
		g.notify(ctx, post.AuthorID, deletedByReportsText)
	}
	return deleted, nil
}

// Pending lists posts still waiting for a decision, oldest first.
func (g *Gate) Pending(ctx context.Context, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	posts, err := g.store.ListPendingPosts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}
	return posts, nil
}

// Resend repeats the moderation request for a pending post.
func (g *Gate) Resend(ctx context.Context, post model.Post) error {
	if g.notifier == nil || post.Status != enums.PostStatusPending {
		return nil
	}
	if err := g.notifier.RequestModeration(ctx, post); err != nil {
		return fmt.Errorf("resend moderation request: %w", err)
	}
	return nil
}

// deleteLocked requires the post lock.
func (g *Gate) deleteLocked(ctx context.Context, post model.Post, reason enums.DeleteReason) (model.Post, error) {
	deleted, err := g.transition(ctx, post.ID, post.Status, enums.PostStatusDeleted)
	if err != nil {
		return model.Post{}, err
	}
	g.publish(ctx, model.PostDeleted{PostID: deleted.ID, Reason: string(reason)})
	return deleted, nil
}

// transition requires the post lock. It writes the store, then the cache.
func (g *Gate) transition(ctx context.Context, postID int64, from, to enums.PostStatus) (model.Post, error) {
	if !enums.CanTransition(from, to) {
		return model.Post{}, errs.ErrInvalidTransition
	}

	post, err := g.store.UpdatePostStatus(ctx, postID, from, to)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidTransition) {
			g.cache.InvalidatePost(postID)
		}
		return model.Post{}, err
	}
	g.cache.PutPost(post)
	metrics.ModerationTransitionsTotal.WithLabelValues(string(to)).Inc()
	g.logger.Info("post status changed",
		zap.Int64("post_id", postID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return post, nil
}

func (g *Gate) publish(ctx context.Context, event model.Event) {
	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Error("publish event", zap.String("type", string(event.Type())), zap.Error(err))
	}
}

func (g *Gate) notify(ctx context.Context, userID int64, text string) {
	if g.notifier == nil || userID == 0 {
		return
	}
	if err := g.notifier.NotifyUser(ctx, userID, text); err != nil {
		g.logger.Warn("notify author", zap.Int64("user_id", userID), zap.Error(err))
	}
}
