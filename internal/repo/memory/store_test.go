package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

func seedUser(t *testing.T, store *Store, id int64) {
	t.Helper()
	if _, err := store.UpsertUser(context.Background(), model.Profile{UserID: id}, 60, "2026-02-08"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestUpdatePostStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	store := New()
	post, err := store.InsertPost(ctx, 1, model.PostDraft{Description: "lamp"}, enums.PostStatusPending)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := store.UpdatePostStatus(ctx, post.ID, enums.PostStatusPending, enums.PostStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := store.UpdatePostStatus(ctx, post.ID, enums.PostStatusPending, enums.PostStatusRejected); !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := store.UpdatePostStatus(ctx, 999, enums.PostStatusPending, enums.PostStatusApproved); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddReportDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedUser(t, store, 2)
	post, _ := store.InsertPost(ctx, 1, model.PostDraft{Description: "lamp"}, enums.PostStatusApproved)

	count, err := store.AddReport(ctx, post.ID, 2, "spam")
	if err != nil || count != 1 {
		t.Fatalf("first report: count=%d err=%v", count, err)
	}
	count, err = store.AddReport(ctx, post.ID, 2, "spam again")
	if !errors.Is(err, errs.ErrAlreadyReported) || count != 1 {
		t.Fatalf("duplicate report: count=%d err=%v", count, err)
	}

	user, _ := store.GetUser(ctx, 2)
	if !user.Reported.Has(post.ID) {
		t.Fatalf("reporter set not updated")
	}
}

func TestResetDailyCounterIfStaleOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedUser(t, store, 3)
	if _, err := store.IncrementDailyCounter(ctx, 3, 5); err != nil {
		t.Fatalf("increment: %v", err)
	}

	user, reset, err := store.ResetDailyCounterIfStale(ctx, 3, "2026-02-08")
	if err != nil || reset || user.PostsToday != 5 {
		t.Fatalf("same-day reset: reset=%v posts=%d err=%v", reset, user.PostsToday, err)
	}
	user, reset, err = store.ResetDailyCounterIfStale(ctx, 3, "2026-02-09")
	if err != nil || !reset || user.PostsToday != 0 {
		t.Fatalf("next-day reset: reset=%v posts=%d err=%v", reset, user.PostsToday, err)
	}
}

func TestQueryApprovedPostsSortsAndPages(t *testing.T) {
	ctx := context.Background()
	store := New()
	base := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		post, _ := store.InsertPost(ctx, 1, model.PostDraft{Description: "item"}, enums.PostStatusApproved)
		if _, err := store.IncrementLikeCount(ctx, post.ID, i%3); err != nil {
			t.Fatalf("like: %v", err)
		}
	}
	_, _ = store.InsertPost(ctx, 1, model.PostDraft{Description: "pending"}, enums.PostStatusPending)

	newest, _ := store.QueryApprovedPosts(ctx, model.PostFilter{}, enums.SortNewest, 0, 2)
	if len(newest) != 2 || newest[0].ID != 5 || newest[1].ID != 4 {
		t.Fatalf("unexpected newest page: %+v", newest)
	}
	oldest, _ := store.QueryApprovedPosts(ctx, model.PostFilter{}, enums.SortOldest, 4, 2)
	if len(oldest) != 1 || oldest[0].ID != 5 {
		t.Fatalf("unexpected oldest tail: %+v", oldest)
	}
	rated, _ := store.QueryApprovedPosts(ctx, model.PostFilter{}, enums.SortRating, 0, 1)
	if len(rated) != 1 || rated[0].LikeCount != 2 || rated[0].ID != 3 {
		t.Fatalf("unexpected rating head: %+v", rated)
	}
	if negative, err := store.QueryApprovedPosts(ctx, model.PostFilter{}, enums.SortNewest, -36, 2); err != nil || len(negative) != 0 {
		t.Fatalf("negative offset: %+v %v", negative, err)
	}
}

func TestRateStoreWindowExpires(t *testing.T) {
	ctx := context.Background()
	store := NewRateStore()
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		count, _, err := store.IncrementWindow(ctx, "k", time.Minute)
		if err != nil || count != int64(i) {
			t.Fatalf("increment #%d: count=%d err=%v", i, count, err)
		}
	}
	now = now.Add(61 * time.Second)
	count, ttl, err := store.IncrementWindow(ctx, "k", time.Minute)
	if err != nil || count != 1 || ttl != time.Minute {
		t.Fatalf("expected a fresh window, got count=%d ttl=%s err=%v", count, ttl, err)
	}
}
