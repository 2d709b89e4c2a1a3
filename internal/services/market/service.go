// Package market is the request API used by every transport.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/domain/rules"
	"github.com/kakcer47/BotTG/internal/metrics"
	"github.com/kakcer47/BotTG/internal/pkg/keylock"
	"github.com/kakcer47/BotTG/internal/pkg/validate"
	"github.com/kakcer47/BotTG/internal/services/moderation"
	"github.com/kakcer47/BotTG/internal/services/quota"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Store interface {
	UpsertUser(ctx context.Context, profile model.Profile, dailyQuota int, today string) (model.User, error)
	SetBanned(ctx context.Context, userID int64, banned bool, reason string) (model.User, error)
	IncrementLikeCount(ctx context.Context, id int64, delta int) (model.Post, error)
	AppendToSet(ctx context.Context, userID int64, set enums.UserSet, postID int64) (bool, error)
	RemoveFromSet(ctx context.Context, userID int64, set enums.UserSet, postID int64) (bool, error)
	QueryApprovedPosts(ctx context.Context, filter model.PostFilter, sort enums.SortMode, offset, limit int) ([]model.Post, error)
}

type Cache interface {
	GetPost(ctx context.Context, id int64) (model.Post, error)
	PutPost(post model.Post)
	FillPost(post model.Post)
	GetUser(ctx context.Context, id int64) (model.User, error)
	PutUser(user model.User)
	InvalidateUser(id int64)
}

// LimitError carries the usage snapshot of a refused create.
type LimitError struct {
	Usage quota.Usage
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily post limit reached: %d/%d", e.Usage.PostsToday, e.Usage.DailyQuota)
}

func (e *LimitError) Unwrap() error { return errs.ErrQuotaExceeded }

type BanError struct {
	Reason string
}

func (e *BanError) Error() string {
	if e.Reason == "" {
		return errs.ErrBanned.Error()
	}
	return errs.ErrBanned.Error() + ": " + e.Reason
}

func (e *BanError) Unwrap() error { return errs.ErrBanned }

type Config struct {
	DailyPostLimit  int
	PageSizeDefault int
	PageSizeMax     int
	Timezone        string
}

type SyncResult struct {
	User  model.User
	Usage quota.Usage
}

type CreateResult struct {
	Post  model.Post
	Usage quota.Usage
}

// ToggleResult is the acting user's view after a like/favorite/hide flip.
type ToggleResult struct {
	Post   model.Post
	Set    enums.UserSet
	Active bool
}

type Service struct {
	store   Store
	cache   Cache
	tracker *quota.Tracker
	gate    *moderation.Gate
	users   *keylock.Locker
	posts   *keylock.Locker
	cfg     Config
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// NewService must receive the same post locker as the gate.
func NewService(store Store, cache Cache, tracker *quota.Tracker, gate *moderation.Gate, posts *keylock.Locker, cfg Config, logger *zap.Logger) *Service {
	if cfg.DailyPostLimit <= 0 {
		cfg.DailyPostLimit = rules.DefaultDailyPostLimit
	}
	if cfg.PageSizeDefault <= 0 {
		cfg.PageSizeDefault = DefaultPageSize
	}
	if cfg.PageSizeMax <= 0 {
		cfg.PageSizeMax = MaxPageSize
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loaded, err := time.LoadLocation(tz); err == nil {
			loc = loaded
		}
	}
	if posts == nil {
		posts = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:   store,
		cache:   cache,
		tracker: tracker,
		gate:    gate,
		users:   keylock.New(),
		posts:   posts,
		cfg:     cfg,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) SyncUser(ctx context.Context, profile model.Profile) (SyncResult, error) {
	if profile.UserID <= 0 {
		return SyncResult{}, errs.Validation("user_id is required")
	}

	unlock := s.users.Lock(profile.UserID)
	defer unlock()

	user, err := s.store.UpsertUser(ctx, profile, s.cfg.DailyPostLimit, rules.DayKey(s.now(), s.loc))
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync user: %w", err)
	}
	s.cache.PutUser(user)
	if user.IsBanned {
		return SyncResult{User: user}, &BanError{Reason: user.BanReason}
	}

	usage, _, err := s.tracker.CanPost(ctx, user.ID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync user: %w", err)
	}
	user, err = s.cache.GetUser(ctx, user.ID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync user: %w", err)
	}
	return SyncResult{User: user, Usage: usage}, nil
}

// CreatePost checks and consumes the daily quota under the user lock, then
// hands the post to the moderation gate. A failed insert refunds the slot.
func (s *Service) CreatePost(ctx context.Context, userID int64, draft model.PostDraft) (CreateResult, error) {
	if userID <= 0 {
		return CreateResult{}, errs.Validation("user_id is required")
	}
	if err := validate.Draft(&draft); err != nil {
		return CreateResult{}, err
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	user, err := s.cache.GetUser(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		user, err = s.store.UpsertUser(ctx, model.Profile{
			UserID:    userID,
			Username:  draft.Creator.Username,
			FirstName: draft.Creator.FirstName,
			LastName:  draft.Creator.LastName,
		}, s.cfg.DailyPostLimit, rules.DayKey(s.now(), s.loc))
		if err == nil {
			s.cache.PutUser(user)
		}
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("create post: %w", err)
	}
	if user.IsBanned {
		return CreateResult{}, &BanError{Reason: user.BanReason}
	}

	usage, ok, err := s.tracker.CanPost(ctx, userID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create post: %w", err)
	}
	if !ok {
		metrics.QuotaRejectionsTotal.Inc()
		return CreateResult{}, &LimitError{Usage: usage}
	}
	if usage, err = s.tracker.RecordPost(ctx, userID); err != nil {
		return CreateResult{}, fmt.Errorf("create post: %w", err)
	}

	draft.Creator.UserID = userID
	if draft.Creator.Username == "" && draft.Creator.FirstName == "" {
		draft.Creator = model.Creator{UserID: userID, Username: user.Username, FirstName: user.FirstName, LastName: user.LastName}
	}

	post, err := s.gate.Submit(ctx, userID, draft)
	if err != nil {
		if _, refundErr := s.tracker.Refund(ctx, userID); refundErr != nil {
			s.logger.Error("refund daily post slot", zap.Int64("user_id", userID), zap.Error(refundErr))
		}
		return CreateResult{}, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("post created",
		zap.Int64("post_id", post.ID),
		zap.Int64("user_id", userID),
		zap.String("status", string(post.Status)),
	)
	return CreateResult{Post: post, Usage: usage}, nil
}

// QueryPosts only ever returns approved posts. Posts hidden by the viewer are
// left out of every sort except "hidden".
func (s *Service) QueryPosts(ctx context.Context, userID int64, q model.PostQuery) ([]model.Post, error) {
	page := q.Page
	if page <= 0 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.PageSizeDefault
	}
	if limit > s.cfg.PageSizeMax {
		limit = s.cfg.PageSizeMax
	}
	if page-1 > (math.MaxInt-limit)/limit {
		return nil, errs.Validation("page %d is out of range", page)
	}

	filter := model.PostFilter{
		Category: strings.TrimSpace(q.Category),
		Search:   strings.TrimSpace(q.Search),
		Tags:     validate.NormalizeTags(q.Tags),
	}

	var viewer model.User
	if userID > 0 {
		user, err := s.cache.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("query posts: %w", err)
		}
		viewer = user
	}

	storeSort := q.Sort
	switch q.Sort {
	case enums.SortMine:
		if userID <= 0 {
			return []model.Post{}, nil
		}
		filter.AuthorID = userID
		storeSort = enums.SortNewest
	case enums.SortFavorites:
		filter.Restrict = true
		filter.OnlyIDs = viewer.Favorites.Slice()
		filter.ExcludeIDs = viewer.Hidden.Slice()
		storeSort = enums.SortNewest
	case enums.SortHidden:
		filter.Restrict = true
		filter.OnlyIDs = viewer.Hidden.Slice()
		storeSort = enums.SortNewest
	case enums.SortNewest, enums.SortOldest, enums.SortRating:
		filter.ExcludeIDs = viewer.Hidden.Slice()
	default:
		return nil, errs.Validation("unknown sort %q", q.Sort)
	}
	if filter.Restrict && len(filter.OnlyIDs) == 0 {
		return []model.Post{}, nil
	}

	posts, err := s.store.QueryApprovedPosts(ctx, filter, storeSort, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	for _, post := range posts {
		s.cache.FillPost(post)
	}
	return posts, nil
}

func (s *Service) ApprovePost(ctx context.Context, postID int64) (model.Post, error) {
	return s.gate.Approve(ctx, postID)
}

func (s *Service) RejectPost(ctx context.Context, postID int64, reasonCode string) (model.Post, error) {
	return s.gate.Reject(ctx, postID, reasonCode)
}

// LikePost flips the like and moves like_count with it. Unliking a post that
// was never liked is a no-op.
func (s *Service) LikePost(ctx context.Context, userID, postID int64) (ToggleResult, error) {
	return s.toggle(ctx, userID, postID, enums.SetLiked)
}

func (s *Service) FavoritePost(ctx context.Context, userID, postID int64) (ToggleResult, error) {
	return s.toggle(ctx, userID, postID, enums.SetFavorites)
}

func (s *Service) HidePost(ctx context.Context, userID, postID int64) (ToggleResult, error) {
	return s.toggle(ctx, userID, postID, enums.SetHidden)
}

func (s *Service) toggle(ctx context.Context, userID, postID int64, set enums.UserSet) (ToggleResult, error) {
	if userID <= 0 || postID <= 0 {
		return ToggleResult{}, errs.Validation("user_id and post_id are required")
	}

	unlockUser := s.users.Lock(userID)
	defer unlockUser()

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return ToggleResult{}, err
	}

	unlockPost := s.posts.Lock(postID)
	defer unlockPost()

	post, err := s.cache.GetPost(ctx, postID)
	if err != nil {
		return ToggleResult{}, fmt.Errorf("%s post: %w", set, err)
	}
	if post.Status != enums.PostStatusApproved {
		return ToggleResult{}, fmt.Errorf("%s post: %w", set, errs.ErrNotFound)
	}

	members := user.Set(set)
	active := !members.Has(postID)
	if active {
		changed, err := s.store.AppendToSet(ctx, userID, set, postID)
		if err != nil {
			return ToggleResult{}, fmt.Errorf("%s post: %w", set, err)
		}
		if changed && set == enums.SetLiked {
			if post, err = s.adjustLikes(ctx, userID, postID, set, 1); err != nil {
				return ToggleResult{}, err
			}
		}
		members[postID] = struct{}{}
	} else {
		changed, err := s.store.RemoveFromSet(ctx, userID, set, postID)
		if err != nil {
			return ToggleResult{}, fmt.Errorf("%s post: %w", set, err)
		}
		if changed && set == enums.SetLiked {
			if post, err = s.adjustLikes(ctx, userID, postID, set, -1); err != nil {
				return ToggleResult{}, err
			}
		}
		delete(members, postID)
	}

	s.cache.PutUser(user)
	s.cache.PutPost(post)
	return ToggleResult{Post: post, Set: set, Active: active}, nil
}

// adjustLikes moves like_count and undoes the membership write if it fails.
func (s *Service) adjustLikes(ctx context.Context, userID, postID int64, set enums.UserSet, delta int) (model.Post, error) {
	post, err := s.store.IncrementLikeCount(ctx, postID, delta)
	if err == nil {
		return post, nil
	}

	var undoErr error
	if delta > 0 {
		_, undoErr = s.store.RemoveFromSet(ctx, userID, set, postID)
	} else {
		_, undoErr = s.store.AppendToSet(ctx, userID, set, postID)
	}
	if undoErr != nil {
		// The stored membership is unknown now; reload it on next read.
		s.cache.InvalidateUser(userID)
		s.logger.Error("undo set membership after like count failure",
			zap.Int64("user_id", userID), zap.Int64("post_id", postID), zap.Error(undoErr))
	}
	return model.Post{}, fmt.Errorf("%s post: %w", set, err)
}

func (s *Service) ReportPost(ctx context.Context, userID, postID int64, reason string) (moderation.ReportResult, error) {
	if userID <= 0 || postID <= 0 {
		return moderation.ReportResult{}, errs.Validation("user_id and post_id are required")
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return moderation.ReportResult{}, err
	}
	result, err := s.gate.Report(ctx, postID, userID, reason)
	if err != nil {
		return result, err
	}
	user.Set(enums.SetReported)[postID] = struct{}{}
	s.cache.PutUser(user)
	return result, nil
}

func (s *Service) DeletePost(ctx context.Context, userID, postID int64) (model.Post, error) {
	if userID <= 0 || postID <= 0 {
		return model.Post{}, errs.Validation("user_id and post_id are required")
	}
	if _, err := s.activeUser(ctx, userID); err != nil {
		return model.Post{}, err
	}
	return s.gate.Delete(ctx, postID, &userID, enums.DeleteReasonAuthor)
}

// RemovePost is the administrative delete.
func (s *Service) RemovePost(ctx context.Context, postID int64) (model.Post, error) {
	return s.gate.Delete(ctx, postID, nil, enums.DeleteReasonModerator)
}

func (s *Service) BanUser(ctx context.Context, userID int64, reason string) (model.User, error) {
	return s.setBanned(ctx, userID, true, strings.TrimSpace(reason))
}

func (s *Service) UnbanUser(ctx context.Context, userID int64) (model.User, error) {
	return s.setBanned(ctx, userID, false, "")
}

func (s *Service) setBanned(ctx context.Context, userID int64, banned bool, reason string) (model.User, error) {
	unlock := s.users.Lock(userID)
	defer unlock()

	user, err := s.store.SetBanned(ctx, userID, banned, reason)
	if err != nil {
		return model.User{}, fmt.Errorf("set banned: %w", err)
	}
	s.cache.PutUser(user)
	s.logger.Info("user ban changed", zap.Int64("user_id", userID), zap.Bool("banned", banned))
	return user, nil
}

func (s *Service) User(ctx context.Context, userID int64) (model.User, error) {
	return s.cache.GetUser(ctx, userID)
}

func (s *Service) Pending(ctx context.Context, limit int) ([]model.Post, error) {
	return s.gate.Pending(ctx, limit)
}

func (s *Service) activeUser(ctx context.Context, userID int64) (model.User, error) {
	user, err := s.cache.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.IsBanned {
		return model.User{}, &BanError{Reason: user.BanReason}
	}
	return user, nil
}
