package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe()
	b := hub.Subscribe()

	if err := hub.Publish(context.Background(), model.PostDeleted{PostID: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			if ev.Type() != model.EventPostDeleted {
				t.Fatalf("unexpected event %s", ev.Type())
			}
		default:
			t.Fatalf("subscription %s got nothing", sub.ID)
		}
	}
}

func TestPublishRefusesRequesterScopedEvents(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Subscribe()

	err := hub.Publish(context.Background(), model.LimitExceeded{DailyQuota: 60})
	if !errors.Is(err, ErrRequesterScoped) {
		t.Fatalf("expected ErrRequesterScoped, got %v", err)
	}
	err = hub.Publish(context.Background(), model.PostUpdated{Personal: true})
	if !errors.Is(err, ErrRequesterScoped) {
		t.Fatalf("expected personal update to be refused, got %v", err)
	}
	if len(sub.Events()) != 0 {
		t.Fatalf("requester scoped event leaked to a subscriber")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(1, nil)
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	ctx := context.Background()
	_ = hub.Publish(ctx, model.PostDeleted{PostID: 1})
	<-fast.Events()
	_ = hub.Publish(ctx, model.PostDeleted{PostID: 2})

	select {
	case <-slow.Done():
	default:
		t.Fatalf("slow subscription must be closed")
	}
	if err := slow.Err(); !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("slow drop must carry a transport error, got %v", err)
	}
	if fast.Err() != nil {
		t.Fatalf("live subscription must not carry an error")
	}
	if hub.Len() != 1 {
		t.Fatalf("expected one live subscription, got %d", hub.Len())
	}
	if ev := <-fast.Events(); ev.(model.PostDeleted).PostID != 2 {
		t.Fatalf("fast subscriber missed event")
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	hub := NewHub(1024, nil)
	subs := make([]*Subscription, 50)
	for i := range subs {
		subs[i] = hub.Subscribe()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = hub.Publish(context.Background(), model.PostDeleted{PostID: int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for _, sub := range subs {
			hub.Unsubscribe(sub)
			hub.Unsubscribe(sub)
		}
	}()
	wg.Wait()

	if hub.Len() != 0 {
		t.Fatalf("expected no subscriptions, got %d", hub.Len())
	}
	if hub.SendTo(subs[0], model.ErrorEvent{Code: "x"}) {
		t.Fatalf("send to closed subscription must fail")
	}
}

func TestCloseDropsEverySubscription(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Close()

	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.Done():
		default:
			t.Fatalf("subscription %s still open after Close", sub.ID)
		}
	}
	if hub.Len() != 0 {
		t.Fatalf("expected empty hub, got %d", hub.Len())
	}
	hub.Unsubscribe(a)
}
