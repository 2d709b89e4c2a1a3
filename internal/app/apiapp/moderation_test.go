package apiapp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/config"
	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	tginfra "github.com/kakcer47/BotTG/internal/infra/telegram"
)

const testModerationChat = int64(-100)

type fakeChat struct {
	texts    []string
	answers  []string
	closed   []string
	reasons  []tginfra.ReasonOption
	reasonID int64
}

func (f *fakeChat) Listen(ctx context.Context, _ tginfra.Handlers) error {
	<-ctx.Done()
	return nil
}

func (f *fakeChat) SendText(_ context.Context, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeChat) AnswerCallback(_ context.Context, _ string, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeChat) CloseModerationRequest(_ context.Context, _ int64, _ int, text string) error {
	f.closed = append(f.closed, text)
	return nil
}

func (f *fakeChat) ShowRejectReasons(_ context.Context, _ int64, _ int, postID int64, reasons []tginfra.ReasonOption) error {
	f.reasonID = postID
	f.reasons = reasons
	return nil
}

type fakeModerationMarket struct {
	approveErr error
	rejected   map[int64]string
	removed    []int64
	banned     map[int64]string
	pending    []model.Post
}

func (f *fakeModerationMarket) ApprovePost(_ context.Context, postID int64) (model.Post, error) {
	if f.approveErr != nil {
		return model.Post{}, f.approveErr
	}
	return model.Post{ID: postID, Status: enums.PostStatusApproved}, nil
}

func (f *fakeModerationMarket) RejectPost(_ context.Context, postID int64, reasonCode string) (model.Post, error) {
	if f.rejected == nil {
		f.rejected = make(map[int64]string)
	}
	f.rejected[postID] = reasonCode
	return model.Post{ID: postID, Status: enums.PostStatusRejected}, nil
}

func (f *fakeModerationMarket) RemovePost(_ context.Context, postID int64) (model.Post, error) {
	f.removed = append(f.removed, postID)
	return model.Post{ID: postID, Status: enums.PostStatusDeleted}, nil
}

func (f *fakeModerationMarket) BanUser(_ context.Context, userID int64, reason string) (model.User, error) {
	if f.banned == nil {
		f.banned = make(map[int64]string)
	}
	f.banned[userID] = reason
	return model.User{ID: userID, IsBanned: true}, nil
}

func (f *fakeModerationMarket) UnbanUser(_ context.Context, userID int64) (model.User, error) {
	delete(f.banned, userID)
	return model.User{ID: userID}, nil
}

func (f *fakeModerationMarket) Pending(context.Context, int) ([]model.Post, error) {
	return f.pending, nil
}

type fakeResender struct {
	sent []int64
}

func (f *fakeResender) Resend(_ context.Context, post model.Post) error {
	f.sent = append(f.sent, post.ID)
	return nil
}

func newTestModerationBot(chat *fakeChat, market *fakeModerationMarket, resender *fakeResender) *moderationBot {
	return newModerationBot(chat, market, resender, config.BotConfig{
		ModerationChatID: testModerationChat,
		AdminIDs:         []int64{777},
	}, zap.NewNop())
}

func TestApproveCallbackClosesRequest(t *testing.T) {
	chat := &fakeChat{}
	bot := newTestModerationBot(chat, &fakeModerationMarket{}, &fakeResender{})

	err := bot.handleCallback(context.Background(), tginfra.CallbackUpdate{
		CallbackID: "cb",
		ChatID:     testModerationChat,
		MessageID:  10,
		UserID:     1,
		Data:       "mod:approve:42",
	})
	if err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if len(chat.closed) != 1 || !strings.Contains(chat.closed[0], "#42 одобрено") {
		t.Fatalf("request not closed: %v", chat.closed)
	}
}

func TestRejectCallbackAsksForReasonFirst(t *testing.T) {
	chat := &fakeChat{}
	market := &fakeModerationMarket{}
	bot := newTestModerationBot(chat, market, &fakeResender{})
	ctx := context.Background()

	if err := bot.handleCallback(ctx, tginfra.CallbackUpdate{ChatID: testModerationChat, MessageID: 3, Data: "mod:reject:9"}); err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if chat.reasonID != 9 || len(chat.reasons) == 0 {
		t.Fatalf("reason keyboard not shown: id=%d reasons=%d", chat.reasonID, len(chat.reasons))
	}
	if len(market.rejected) != 0 {
		t.Fatalf("post must not be rejected before a reason is picked")
	}

	if err := bot.handleCallback(ctx, tginfra.CallbackUpdate{ChatID: testModerationChat, MessageID: 3, Data: "mod:reject:9:DUPLICATE"}); err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if market.rejected[9] != "DUPLICATE" {
		t.Fatalf("unexpected reject reason: %q", market.rejected[9])
	}
	if len(chat.closed) != 1 || !strings.Contains(chat.closed[0], "#9 отклонено") {
		t.Fatalf("request not closed: %v", chat.closed)
	}
}

func TestSecondDecisionReportsAlreadyHandled(t *testing.T) {
	chat := &fakeChat{}
	market := &fakeModerationMarket{approveErr: errs.Store("transition", errs.ErrInvalidTransition)}
	bot := newTestModerationBot(chat, market, &fakeResender{})

	err := bot.handleCallback(context.Background(), tginfra.CallbackUpdate{ChatID: testModerationChat, Data: "mod:approve:5"})
	if err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if len(chat.answers) != 1 || chat.answers[0] != handledText {
		t.Fatalf("unexpected answers: %v", chat.answers)
	}
}

func TestCallbackOutsideModerationChatIsRefused(t *testing.T) {
	chat := &fakeChat{}
	market := &fakeModerationMarket{approveErr: errors.New("must not be called")}
	bot := newTestModerationBot(chat, market, &fakeResender{})

	if err := bot.handleCallback(context.Background(), tginfra.CallbackUpdate{ChatID: 55, UserID: 1, Data: "mod:approve:5"}); err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if len(chat.answers) != 1 || chat.answers[0] != noAccessText {
		t.Fatalf("unexpected answers: %v", chat.answers)
	}
}

func TestAdminCommandsFromPrivateChat(t *testing.T) {
	chat := &fakeChat{}
	market := &fakeModerationMarket{}
	bot := newTestModerationBot(chat, market, &fakeResender{})
	ctx := context.Background()

	commands := []tginfra.CommandUpdate{
		{ChatID: 777, UserID: 777, Command: "delete", Args: "12"},
		{ChatID: 777, UserID: 777, Command: "ban", Args: "31 spam bot"},
	}
	for _, cmd := range commands {
		if err := bot.handleCommand(ctx, cmd); err != nil {
			t.Fatalf("handleCommand(%s): %v", cmd.Command, err)
		}
	}

	if len(market.removed) != 1 || market.removed[0] != 12 {
		t.Fatalf("post not removed: %v", market.removed)
	}
	if market.banned[31] != "spam bot" {
		t.Fatalf("unexpected ban reason: %q", market.banned[31])
	}

	if err := bot.handleCommand(ctx, tginfra.CommandUpdate{ChatID: 777, UserID: 777, Command: "unban", Args: "31"}); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, ok := market.banned[31]; ok {
		t.Fatalf("user still banned")
	}
}

func TestCommandUsageOnBadArguments(t *testing.T) {
	chat := &fakeChat{}
	market := &fakeModerationMarket{}
	bot := newTestModerationBot(chat, market, &fakeResender{})

	if err := bot.handleCommand(context.Background(), tginfra.CommandUpdate{ChatID: testModerationChat, Command: "delete", Args: "abc"}); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(market.removed) != 0 {
		t.Fatalf("nothing should be removed")
	}
	if len(chat.texts) != 1 || !strings.HasPrefix(chat.texts[0], "Использование") {
		t.Fatalf("expected usage hint, got %v", chat.texts)
	}
}

func TestPendingResendsQueue(t *testing.T) {
	chat := &fakeChat{}
	resender := &fakeResender{}
	market := &fakeModerationMarket{pending: []model.Post{
		{ID: 1, Status: enums.PostStatusPending},
		{ID: 2, Status: enums.PostStatusPending},
	}}
	bot := newTestModerationBot(chat, market, resender)

	if err := bot.handleCommand(context.Background(), tginfra.CommandUpdate{ChatID: testModerationChat, Command: "pending"}); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(resender.sent) != 2 {
		t.Fatalf("expected two resends, got %v", resender.sent)
	}
	if len(chat.texts) != 1 || !strings.Contains(chat.texts[0], "отправлено заново: 2") {
		t.Fatalf("unexpected summary: %v", chat.texts)
	}
}

func TestHelpIsOpenToEveryone(t *testing.T) {
	chat := &fakeChat{}
	bot := newTestModerationBot(chat, &fakeModerationMarket{}, &fakeResender{})

	if err := bot.handleCommand(context.Background(), tginfra.CommandUpdate{ChatID: 9, UserID: 9, Command: "start"}); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if len(chat.texts) != 1 || chat.texts[0] != helpText {
		t.Fatalf("unexpected reply: %v", chat.texts)
	}
}
