// Package memory is an in-process PersistentStore used by tests and by
// deployments that run without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

type reportKey struct {
	postID     int64
	reporterID int64
}

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	posts   map[int64]model.Post
	users   map[int64]model.User
	reports map[reportKey]string

	failNext error
	now      func() time.Time
}

func New() *Store {
	return &Store{
		posts:   make(map[int64]model.Post),
		users:   make(map[int64]model.User),
		reports: make(map[reportKey]string),
		now:     time.Now,
	}
}

func (s *Store) fail(op string) error {
	if s.failNext == nil {
		return nil
	}
	err := s.failNext
	s.failNext = nil
	return errs.Store(op, err)
}

// Fail arms a one-shot failure for the next mutating call.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) GetUser(_ context.Context, id int64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return user.Clone(), nil
}

func (s *Store) UpsertUser(_ context.Context, profile model.Profile, dailyQuota int, today string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("upsert user"); err != nil {
		return model.User{}, err
	}

	user, ok := s.users[profile.UserID]
	if !ok {
		user = model.User{
			ID:            profile.UserID,
			DailyQuota:    dailyQuota,
			LastResetDate: today,
			CreatedAt:     s.now().UTC(),
		}
	}
	user.Username = profile.Username
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.PhotoURL = profile.PhotoURL
	s.users[user.ID] = user
	return user.Clone(), nil
}

func (s *Store) SetBanned(_ context.Context, userID int64, banned bool, reason string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("set banned"); err != nil {
		return model.User{}, err
	}

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	user.IsBanned = banned
	user.BanReason = ""
	if banned {
		user.BanReason = reason
	}
	s.users[userID] = user
	return user.Clone(), nil
}

func (s *Store) ResetDailyCounterIfStale(_ context.Context, userID int64, today string) (model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("reset daily counter"); err != nil {
		return model.User{}, false, err
	}

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, false, errs.ErrNotFound
	}
	if user.LastResetDate == today {
		return user.Clone(), false, nil
	}
	user.PostsToday = 0
	user.LastResetDate = today
	s.users[userID] = user
	return user.Clone(), true, nil
}

func (s *Store) IncrementDailyCounter(_ context.Context, userID int64, delta int) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("increment daily counter"); err != nil {
		return model.User{}, err
	}

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	user.PostsToday += delta
	if user.PostsToday < 0 {
		user.PostsToday = 0
	}
	s.users[userID] = user
	return user.Clone(), nil
}

func (s *Store) AppendToSet(_ context.Context, userID int64, set enums.UserSet, postID int64) (bool, error) {
	return s.mutateSet(userID, set, postID, true)
}

func (s *Store) RemoveFromSet(_ context.Context, userID int64, set enums.UserSet, postID int64) (bool, error) {
	return s.mutateSet(userID, set, postID, false)
}

func (s *Store) mutateSet(userID int64, set enums.UserSet, postID int64, add bool) (bool, error) {
	if !set.Valid() {
		return false, errs.Validation("unknown set %q", set)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("mutate set"); err != nil {
		return false, err
	}

	user, ok := s.users[userID]
	if !ok {
		return false, errs.ErrNotFound
	}
	members := user.Set(set)
	changed := members.Has(postID) != add
	if add {
		members[postID] = struct{}{}
	} else {
		delete(members, postID)
	}
	s.users[userID] = user
	return changed, nil
}

func (s *Store) GetPost(_ context.Context, id int64) (model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return model.Post{}, errs.ErrNotFound
	}
	return post.Clone(), nil
}

func (s *Store) InsertPost(_ context.Context, authorID int64, draft model.PostDraft, status enums.PostStatus) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("insert post"); err != nil {
		return model.Post{}, err
	}

	s.nextID++
	post := model.Post{
		ID:          s.nextID,
		AuthorID:    authorID,
		Description: draft.Description,
		Category:    draft.Category,
		Tags:        append([]string(nil), draft.Tags...),
		Status:      status,
		Creator:     draft.Creator,
		CreatedAt:   s.now().UTC(),
	}
	s.posts[post.ID] = post
	return post.Clone(), nil
}

func (s *Store) UpdatePostStatus(_ context.Context, id int64, from, to enums.PostStatus) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("update post status"); err != nil {
		return model.Post{}, err
	}

	post, ok := s.posts[id]
	if !ok {
		return model.Post{}, errs.ErrNotFound
	}
	if post.Status != from || !enums.CanTransition(from, to) {
		return model.Post{}, errs.ErrInvalidTransition
	}
	post.Status = to
	s.posts[id] = post
	return post.Clone(), nil
}

func (s *Store) IncrementLikeCount(_ context.Context, id int64, delta int) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("increment like count"); err != nil {
		return model.Post{}, err
	}

	post, ok := s.posts[id]
	if !ok {
		return model.Post{}, errs.ErrNotFound
	}
	post.LikeCount += delta
	if post.LikeCount < 0 {
		post.LikeCount = 0
	}
	s.posts[id] = post
	return post.Clone(), nil
}

func (s *Store) AddReport(_ context.Context, postID, reporterID int64, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("add report"); err != nil {
		return 0, err
	}

	post, ok := s.posts[postID]
	if !ok {
		return 0, errs.ErrNotFound
	}
	key := reportKey{postID: postID, reporterID: reporterID}
	if _, exists := s.reports[key]; exists {
		return post.ComplaintCount, errs.ErrAlreadyReported
	}
	s.reports[key] = reason
	post.ComplaintCount++
	s.posts[postID] = post

	if user, ok := s.users[reporterID]; ok {
		user.Set(enums.SetReported)[postID] = struct{}{}
		s.users[reporterID] = user
	}
	return post.ComplaintCount, nil
}

func (s *Store) QueryApprovedPosts(_ context.Context, filter model.PostFilter, mode enums.SortMode, offset, limit int) ([]model.Post, error) {
	s.mu.RLock()
	out := make([]model.Post, 0)
	for _, post := range s.posts {
		if filter.Match(post) {
			out = append(out, post.Clone())
		}
	}
	s.mu.RUnlock()

	sortPosts(out, mode)
	if offset < 0 || offset >= len(out) {
		return []model.Post{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPendingPosts(_ context.Context, limit int) ([]model.Post, error) {
	s.mu.RLock()
	out := make([]model.Post, 0)
	for _, post := range s.posts {
		if post.Status == enums.PostStatusPending {
			out = append(out, post.Clone())
		}
	}
	s.mu.RUnlock()

	sortPosts(out, enums.SortOldest)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortPosts(posts []model.Post, mode enums.SortMode) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		switch mode {
		case enums.SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		case enums.SortRating:
			if a.LikeCount != b.LikeCount {
				return a.LikeCount > b.LikeCount
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
