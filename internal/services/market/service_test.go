package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/pkg/keylock"
	"github.com/kakcer47/BotTG/internal/repo/memory"
	"github.com/kakcer47/BotTG/internal/services/broadcast"
	"github.com/kakcer47/BotTG/internal/services/cache"
	"github.com/kakcer47/BotTG/internal/services/moderation"
	"github.com/kakcer47/BotTG/internal/services/quota"
)

type nopNotifier struct{}

func (nopNotifier) RequestModeration(context.Context, model.Post) error { return nil }
func (nopNotifier) NotifyUser(context.Context, int64, string) error    { return nil }

type fixture struct {
	svc   *Service
	store *memory.Store
	hub   *broadcast.Hub
}

func newFixture(t *testing.T, dailyLimit int, moderated bool) fixture {
	t.Helper()
	store := memory.New()
	c, err := cache.New(store, store, cache.Config{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	hub := broadcast.NewHub(256, nil)
	posts := keylock.New()
	tracker := quota.NewTracker(store, c, quota.Config{}, nil)
	gate := moderation.NewGate(store, c, hub, nopNotifier{}, posts, moderation.Config{ModerationEnabled: moderated, ComplaintThreshold: 5}, nil)
	svc := NewService(store, c, tracker, gate, posts, Config{DailyPostLimit: dailyLimit}, nil)
	return fixture{svc: svc, store: store, hub: hub}
}

func (f fixture) sync(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if _, err := f.svc.SyncUser(context.Background(), model.Profile{UserID: id, FirstName: fmt.Sprintf("user%d", id)}); err != nil {
			t.Fatalf("sync user %d: %v", id, err)
		}
	}
}

func (f fixture) approved(t *testing.T, authorID int64, draft model.PostDraft) model.Post {
	t.Helper()
	ctx := context.Background()
	created, err := f.svc.CreatePost(ctx, authorID, draft)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if created.Post.Status == enums.PostStatusApproved {
		return created.Post
	}
	post, err := f.svc.ApprovePost(ctx, created.Post.ID)
	if err != nil {
		t.Fatalf("approve post: %v", err)
	}
	return post
}

func drain(sub *broadcast.Subscription) []model.Event {
	out := make([]model.Event, 0)
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCreateApproveAndQuotaScenario(t *testing.T) {
	f := newFixture(t, 2, true)
	ctx := context.Background()
	f.sync(t, 1, 2)
	subA := f.hub.Subscribe()
	subB := f.hub.Subscribe()

	created, err := f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "post X", Category: "travel"})
	if err != nil {
		t.Fatalf("create X: %v", err)
	}
	if created.Post.Status != enums.PostStatusPending || created.Usage.PostsToday != 1 {
		t.Fatalf("unexpected create result: %+v", created)
	}
	if len(drain(subA))+len(drain(subB)) != 0 {
		t.Fatalf("pending post must not be broadcast")
	}

	if _, err := f.svc.ApprovePost(ctx, created.Post.ID); err != nil {
		t.Fatalf("approve X: %v", err)
	}
	for name, sub := range map[string]*broadcast.Subscription{"A": subA, "B": subB} {
		events := drain(sub)
		if len(events) != 1 {
			t.Fatalf("subscriber %s expected 1 event, got %d", name, len(events))
		}
		updated, ok := events[0].(model.PostUpdated)
		if !ok || updated.Post.Status != enums.PostStatusApproved || updated.Post.ID != created.Post.ID {
			t.Fatalf("subscriber %s got unexpected event: %+v", name, events[0])
		}
	}

	second, err := f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "post Y"})
	if err != nil {
		t.Fatalf("create Y: %v", err)
	}
	if second.Usage.PostsToday != 2 || second.Usage.PostsLeft != 0 {
		t.Fatalf("unexpected usage after Y: %+v", second.Usage)
	}

	_, err = f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "post Z"})
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
	if limitErr.Usage.DailyQuota != 2 {
		t.Fatalf("unexpected limit usage: %+v", limitErr.Usage)
	}
}

func TestComplaintScenarioBroadcastsDeletion(t *testing.T) {
	f := newFixture(t, 60, true)
	ctx := context.Background()
	f.sync(t, 1, 2, 3, 4, 5, 6)
	post := f.approved(t, 1, model.PostDraft{Description: "post X"})
	subs := []*broadcast.Subscription{f.hub.Subscribe(), f.hub.Subscribe()}

	if _, err := f.svc.ReportPost(ctx, 2, post.ID, "spam"); err != nil {
		t.Fatalf("report: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := f.svc.ReportPost(ctx, 2, post.ID, "spam"); !errors.Is(err, errs.ErrAlreadyReported) {
			t.Fatalf("repeat report #%d: %v", i, err)
		}
	}

	var last moderation.ReportResult
	for reporter := int64(3); reporter <= 6; reporter++ {
		result, err := f.svc.ReportPost(ctx, reporter, post.ID, "")
		if err != nil {
			t.Fatalf("report by %d: %v", reporter, err)
		}
		last = result
	}
	if !last.Deleted || last.ComplaintCount != 5 {
		t.Fatalf("fifth distinct report must delete: %+v", last)
	}
	for _, sub := range subs {
		events := drain(sub)
		if len(events) != 1 {
			t.Fatalf("expected one deletion event, got %d", len(events))
		}
		if deleted, ok := events[0].(model.PostDeleted); !ok || deleted.PostID != post.ID {
			t.Fatalf("unexpected event: %+v", events[0])
		}
	}

	user, _ := f.svc.User(ctx, 2)
	if !user.Reported.Has(post.ID) {
		t.Fatalf("reporter set not cached")
	}
}

func TestConcurrentCreatesRespectQuota(t *testing.T) {
	f := newFixture(t, 5, true)
	f.sync(t, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.CreatePost(context.Background(), 1, model.PostDraft{Description: fmt.Sprintf("item %d", n)})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, errs.ErrQuotaExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != 5 {
		t.Fatalf("expected 5 accepted posts, got %d", success)
	}
	user, _ := f.store.GetUser(context.Background(), 1)
	if user.PostsToday != 5 {
		t.Fatalf("posts_today drifted: %d", user.PostsToday)
	}
}

func TestLikeIsToggle(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	post := f.approved(t, 1, model.PostDraft{Description: "lamp"})

	liked, err := f.svc.LikePost(ctx, 2, post.ID)
	if err != nil || !liked.Active || liked.Post.LikeCount != 1 {
		t.Fatalf("like: %+v %v", liked, err)
	}
	unliked, err := f.svc.LikePost(ctx, 2, post.ID)
	if err != nil || unliked.Active || unliked.Post.LikeCount != 0 {
		t.Fatalf("unlike: %+v %v", unliked, err)
	}

	user, _ := f.svc.User(ctx, 2)
	if user.Liked.Has(post.ID) {
		t.Fatalf("liked set not restored")
	}
	stored, _ := f.store.GetPost(ctx, post.ID)
	if stored.LikeCount != 0 {
		t.Fatalf("stored like count drifted: %d", stored.LikeCount)
	}
}

func TestLikeFailureRollsBackMembership(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	post := f.approved(t, 1, model.PostDraft{Description: "lamp"})

	// The membership write succeeds, the like counter write fails.
	f.svc.store = &failingCounterStore{Store: f.store}

	if _, err := f.svc.LikePost(ctx, 2, post.ID); !errors.Is(err, errs.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	user, _ := f.store.GetUser(ctx, 2)
	if user.Liked.Has(post.ID) {
		t.Fatalf("membership must be undone")
	}
	cached, _ := f.svc.User(ctx, 2)
	if cached.Liked.Has(post.ID) {
		t.Fatalf("cache must not see a failed like")
	}
}

type failingCounterStore struct {
	*memory.Store
}

func (s *failingCounterStore) IncrementLikeCount(context.Context, int64, int) (model.Post, error) {
	return model.Post{}, errs.Store("increment like count", errors.New("timeout"))
}

func TestFailedLikeUndoReloadsUserFromStore(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	post := f.approved(t, 1, model.PostDraft{Description: "lamp"})
	if _, err := f.svc.User(ctx, 2); err != nil {
		t.Fatalf("warm user cache: %v", err)
	}

	f.svc.store = &failingUndoStore{failingCounterStore{Store: f.store}}

	if _, err := f.svc.LikePost(ctx, 2, post.ID); !errors.Is(err, errs.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	cached, err := f.svc.User(ctx, 2)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !cached.Liked.Has(post.ID) {
		t.Fatalf("cache must follow the stored membership after a failed undo")
	}
}

type failingUndoStore struct {
	failingCounterStore
}

func (s *failingUndoStore) RemoveFromSet(context.Context, int64, enums.UserSet, int64) (bool, error) {
	return false, errs.Store("remove from set", errors.New("timeout"))
}

func TestQueryPostsVisibility(t *testing.T) {
	f := newFixture(t, 60, true)
	ctx := context.Background()
	f.sync(t, 1, 2)

	visible := f.approved(t, 1, model.PostDraft{Description: "Hiking boots", Category: "travel", Tags: []string{"city:minsk"}})
	other := f.approved(t, 1, model.PostDraft{Description: "Sofa", Category: "home"})
	pending, _ := f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "pending hiking"})
	rejected, _ := f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "rejected hiking"})
	if _, err := f.svc.RejectPost(ctx, rejected.Post.ID, ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	cases := []struct {
		name  string
		user  int64
		query model.PostQuery
		want  []int64
	}{
		{"newest", 2, model.PostQuery{Sort: enums.SortNewest}, []int64{other.ID, visible.ID}},
		{"oldest", 2, model.PostQuery{Sort: enums.SortOldest}, []int64{visible.ID, other.ID}},
		{"category", 2, model.PostQuery{Sort: enums.SortNewest, Category: "travel"}, []int64{visible.ID}},
		{"search", 2, model.PostQuery{Sort: enums.SortNewest, Search: "HIKING"}, []int64{visible.ID}},
		{"tags", 2, model.PostQuery{Sort: enums.SortNewest, Tags: []string{"city:minsk"}}, []int64{visible.ID}},
		{"mine only approved", 1, model.PostQuery{Sort: enums.SortMine}, []int64{other.ID, visible.ID}},
		{"mine for stranger", 2, model.PostQuery{Sort: enums.SortMine}, []int64{}},
		{"page two", 2, model.PostQuery{Sort: enums.SortNewest, Page: 2, Limit: 1}, []int64{visible.ID}},
	}
	for _, tc := range cases {
		posts, err := f.svc.QueryPosts(ctx, tc.user, tc.query)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(posts) != len(tc.want) {
			t.Fatalf("%s: got %d posts want %d", tc.name, len(posts), len(tc.want))
		}
		for i, post := range posts {
			if post.ID != tc.want[i] {
				t.Fatalf("%s: position %d got %d want %d", tc.name, i, post.ID, tc.want[i])
			}
			if post.ID == pending.Post.ID || post.ID == rejected.Post.ID {
				t.Fatalf("%s: non-approved post leaked", tc.name)
			}
		}
	}
}

func TestQueryPostsRejectsOverflowingPage(t *testing.T) {
	f := newFixture(t, 60, true)
	ctx := context.Background()
	f.sync(t, 1)
	f.approved(t, 1, model.PostDraft{Description: "lamp"})

	for _, page := range []int{math.MaxInt / 10, math.MaxInt} {
		posts, err := f.svc.QueryPosts(ctx, 1, model.PostQuery{Sort: enums.SortNewest, Page: page, Limit: 20})
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("page %d: expected validation error, got %v (%d posts)", page, err, len(posts))
		}
	}

	// The largest page whose offset still fits is a valid, empty page.
	maxPage := (math.MaxInt-20)/20 + 1
	posts, err := f.svc.QueryPosts(ctx, 1, model.PostQuery{Sort: enums.SortNewest, Page: maxPage, Limit: 20})
	if err != nil || len(posts) != 0 {
		t.Fatalf("max page: %d posts, %v", len(posts), err)
	}
}

func TestFavoritesAndHidden(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	a := f.approved(t, 1, model.PostDraft{Description: "a"})
	b := f.approved(t, 1, model.PostDraft{Description: "b"})

	if res, err := f.svc.FavoritePost(ctx, 2, a.ID); err != nil || !res.Active {
		t.Fatalf("favorite: %+v %v", res, err)
	}
	if res, err := f.svc.HidePost(ctx, 2, b.ID); err != nil || !res.Active {
		t.Fatalf("hide: %+v %v", res, err)
	}

	favorites, _ := f.svc.QueryPosts(ctx, 2, model.PostQuery{Sort: enums.SortFavorites})
	if len(favorites) != 1 || favorites[0].ID != a.ID {
		t.Fatalf("unexpected favorites: %+v", favorites)
	}
	hidden, _ := f.svc.QueryPosts(ctx, 2, model.PostQuery{Sort: enums.SortHidden})
	if len(hidden) != 1 || hidden[0].ID != b.ID {
		t.Fatalf("unexpected hidden: %+v", hidden)
	}
	feed, _ := f.svc.QueryPosts(ctx, 2, model.PostQuery{Sort: enums.SortNewest})
	if len(feed) != 1 || feed[0].ID != a.ID {
		t.Fatalf("hidden post must be excluded from the feed: %+v", feed)
	}

	if res, err := f.svc.HidePost(ctx, 2, b.ID); err != nil || res.Active {
		t.Fatalf("unhide: %+v %v", res, err)
	}
	feed, _ = f.svc.QueryPosts(ctx, 2, model.PostQuery{Sort: enums.SortNewest})
	if len(feed) != 2 {
		t.Fatalf("unhidden post must come back: %+v", feed)
	}
}

func TestBannedUserIsShortCircuited(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	post := f.approved(t, 1, model.PostDraft{Description: "a"})

	if _, err := f.svc.BanUser(ctx, 2, "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	var banErr *BanError
	if _, err := f.svc.CreatePost(ctx, 2, model.PostDraft{Description: "x"}); !errors.As(err, &banErr) || banErr.Reason != "spam" {
		t.Fatalf("create must be refused: %v", err)
	}
	if _, err := f.svc.LikePost(ctx, 2, post.ID); !errors.Is(err, errs.ErrBanned) {
		t.Fatalf("like must be refused: %v", err)
	}
	if _, err := f.svc.ReportPost(ctx, 2, post.ID, ""); !errors.Is(err, errs.ErrBanned) {
		t.Fatalf("report must be refused: %v", err)
	}
	if _, err := f.svc.SyncUser(ctx, model.Profile{UserID: 2}); !errors.Is(err, errs.ErrBanned) {
		t.Fatalf("sync must report the ban: %v", err)
	}

	if _, err := f.svc.UnbanUser(ctx, 2); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, err := f.svc.LikePost(ctx, 2, post.ID); err != nil {
		t.Fatalf("like after unban: %v", err)
	}
}

func TestCreateRefundsQuotaWhenInsertFails(t *testing.T) {
	f := newFixture(t, 60, true)
	ctx := context.Background()
	f.sync(t, 1)
	if _, _, err := f.svc.tracker.CanPost(ctx, 1); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	store := &failingInsertStore{Store: f.store}
	c, _ := cache.New(store, store, cache.Config{})
	posts := keylock.New()
	tracker := quota.NewTracker(store, c, quota.Config{}, nil)
	gate := moderation.NewGate(store, c, f.hub, nopNotifier{}, posts, moderation.Config{ModerationEnabled: true}, nil)
	svc := NewService(store, c, tracker, gate, posts, Config{}, nil)

	if _, err := svc.CreatePost(ctx, 1, model.PostDraft{Description: "x"}); !errors.Is(err, errs.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	user, _ := f.store.GetUser(ctx, 1)
	if user.PostsToday != 0 {
		t.Fatalf("quota slot not refunded: %d", user.PostsToday)
	}
}

type failingInsertStore struct {
	*memory.Store
}

func (s *failingInsertStore) InsertPost(context.Context, int64, model.PostDraft, enums.PostStatus) (model.Post, error) {
	return model.Post{}, errs.Store("insert post", errors.New("disk full"))
}

func TestDeletePostByAuthorOnly(t *testing.T) {
	f := newFixture(t, 60, false)
	ctx := context.Background()
	f.sync(t, 1, 2)
	post := f.approved(t, 1, model.PostDraft{Description: "a"})

	if _, err := f.svc.DeletePost(ctx, 2, post.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.DeletePost(ctx, 1, post.ID); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	feed, _ := f.svc.QueryPosts(ctx, 2, model.PostQuery{Sort: enums.SortNewest})
	if len(feed) != 0 {
		t.Fatalf("deleted post still visible: %+v", feed)
	}
}

func TestAuthorCannotWithdrawPendingPost(t *testing.T) {
	f := newFixture(t, 60, true)
	ctx := context.Background()
	f.sync(t, 1)

	created, err := f.svc.CreatePost(ctx, 1, model.PostDraft{Description: "a"})
	if err != nil || created.Post.Status != enums.PostStatusPending {
		t.Fatalf("create pending post: %+v %v", created, err)
	}
	if _, err := f.svc.DeletePost(ctx, 1, created.Post.ID); !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("pending post must not be withdrawn, got %v", err)
	}
	stored, err := f.store.GetPost(ctx, created.Post.ID)
	if err != nil || stored.Status != enums.PostStatusPending {
		t.Fatalf("post must stay pending: %+v %v", stored, err)
	}

	if _, err := f.svc.RejectPost(ctx, created.Post.ID, ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	deleted, err := f.svc.DeletePost(ctx, 1, created.Post.ID)
	if err != nil || deleted.Status != enums.PostStatusDeleted {
		t.Fatalf("author may delete a rejected post: %+v %v", deleted, err)
	}
}
