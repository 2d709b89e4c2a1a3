package apiapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/config"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	tginfra "github.com/kakcer47/BotTG/internal/infra/telegram"
	modsvc "github.com/kakcer47/BotTG/internal/services/moderation"
)

const (
	pendingListLimit = 20

	helpText = "Команды модератора:\n" +
		"/pending - повторить заявки на модерацию\n" +
		"/delete <id> - удалить объявление\n" +
		"/ban <user_id> [причина] - заблокировать пользователя\n" +
		"/unban <user_id> - разблокировать пользователя"

	noAccessText    = "⛔ Нет доступа."
	queueEmptyText  = "Очередь модерации пуста."
	handledText     = "Уже обработано"
	postMissingText = "Объявление не найдено"
)

type moderationChat interface {
	Listen(ctx context.Context, handlers tginfra.Handlers) error
	SendText(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	CloseModerationRequest(ctx context.Context, chatID int64, messageID int, text string) error
	ShowRejectReasons(ctx context.Context, chatID int64, messageID int, postID int64, reasons []tginfra.ReasonOption) error
}

type moderationMarket interface {
	ApprovePost(ctx context.Context, postID int64) (model.Post, error)
	RejectPost(ctx context.Context, postID int64, reasonCode string) (model.Post, error)
	RemovePost(ctx context.Context, postID int64) (model.Post, error)
	BanUser(ctx context.Context, userID int64, reason string) (model.User, error)
	UnbanUser(ctx context.Context, userID int64) (model.User, error)
	Pending(ctx context.Context, limit int) ([]model.Post, error)
}

type moderationResender interface {
	Resend(ctx context.Context, post model.Post) error
}

// moderationBot serves the moderators' chat: decision buttons on new posts
// and a handful of admin commands.
type moderationBot struct {
	chat     moderationChat
	market   moderationMarket
	resender moderationResender
	chatID   int64
	admins   map[int64]struct{}
	logger   *zap.Logger
}

func newModerationBot(chat moderationChat, market moderationMarket, resender moderationResender, cfg config.BotConfig, logger *zap.Logger) *moderationBot {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	return &moderationBot{
		chat:     chat,
		market:   market,
		resender: resender,
		chatID:   cfg.ModerationChatID,
		admins:   admins,
		logger:   logger,
	}
}

func (m *moderationBot) Run(ctx context.Context) error {
	m.logger.Info("moderation bot started", zap.Int64("moderation_chat_id", m.chatID))
	err := m.chat.Listen(ctx, tginfra.Handlers{
		OnCommand:  m.handleCommand,
		OnCallback: m.handleCallback,
		OnError: func(err error) {
			m.logger.Warn("moderation update failed", zap.Error(err))
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Info("moderation bot stopped")
	return nil
}

func (m *moderationBot) allowed(chatID, userID int64) bool {
	if m.chatID != 0 && chatID == m.chatID {
		return true
	}
	_, ok := m.admins[userID]
	return ok
}

func (m *moderationBot) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	if !m.allowed(update.ChatID, update.UserID) {
		return m.chat.AnswerCallback(ctx, update.CallbackID, noAccessText)
	}

	action, postID, reason, ok := tginfra.ParseModerationCallback(update.Data)
	if !ok {
		return m.chat.AnswerCallback(ctx, update.CallbackID, "Неизвестное действие")
	}

	switch action {
	case tginfra.ActionApprove:
		post, err := m.market.ApprovePost(ctx, postID)
		if err != nil {
			return m.answerFailure(ctx, update, postID, err)
		}
		m.logger.Info("post approved", zap.Int64("post_id", post.ID), zap.Int64("moderator_id", update.UserID))
		if err := m.chat.AnswerCallback(ctx, update.CallbackID, "Одобрено"); err != nil {
			return err
		}
		return m.chat.CloseModerationRequest(ctx, update.ChatID, update.MessageID,
			fmt.Sprintf("✅ Объявление #%d одобрено", post.ID))

	case tginfra.ActionReject:
		if reason == "" {
			if err := m.chat.AnswerCallback(ctx, update.CallbackID, "Выберите причину"); err != nil {
				return err
			}
			return m.chat.ShowRejectReasons(ctx, update.ChatID, update.MessageID, postID, reasonOptions())
		}
		post, err := m.market.RejectPost(ctx, postID, reason)
		if err != nil {
			return m.answerFailure(ctx, update, postID, err)
		}
		m.logger.Info("post rejected",
			zap.Int64("post_id", post.ID),
			zap.Int64("moderator_id", update.UserID),
			zap.String("reason", reason),
		)
		if err := m.chat.AnswerCallback(ctx, update.CallbackID, "Отклонено"); err != nil {
			return err
		}
		return m.chat.CloseModerationRequest(ctx, update.ChatID, update.MessageID,
			fmt.Sprintf("❌ Объявление #%d отклонено", post.ID))
	}
	return nil
}

// answerFailure answers a decision that lost the race or hit a missing post
// and closes the stale request.
func (m *moderationBot) answerFailure(ctx context.Context, update tginfra.CallbackUpdate, postID int64, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidTransition):
		if answerErr := m.chat.AnswerCallback(ctx, update.CallbackID, handledText); answerErr != nil {
			return answerErr
		}
		return m.chat.CloseModerationRequest(ctx, update.ChatID, update.MessageID,
			fmt.Sprintf("ℹ️ Объявление #%d уже обработано", postID))
	case errors.Is(err, errs.ErrNotFound):
		if answerErr := m.chat.AnswerCallback(ctx, update.CallbackID, postMissingText); answerErr != nil {
			return answerErr
		}
		return m.chat.CloseModerationRequest(ctx, update.ChatID, update.MessageID,
			fmt.Sprintf("ℹ️ Объявление #%d не найдено", postID))
	default:
		m.logger.Error("moderation decision failed", zap.Int64("post_id", postID), zap.Error(err))
		return m.chat.AnswerCallback(ctx, update.CallbackID, "Ошибка, попробуйте ещё раз")
	}
}

func (m *moderationBot) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	command := strings.ToLower(strings.TrimSpace(update.Command))
	if command == "start" || command == "help" {
		return m.chat.SendText(ctx, update.ChatID, helpText)
	}
	if !m.allowed(update.ChatID, update.UserID) {
		return m.chat.SendText(ctx, update.ChatID, noAccessText)
	}

	switch command {
	case "pending":
		return m.resendPending(ctx, update.ChatID)
	case "delete":
		id, ok := parseID(update.Args)
		if !ok {
			return m.chat.SendText(ctx, update.ChatID, "Использование: /delete <id>")
		}
		if _, err := m.market.RemovePost(ctx, id); err != nil {
			return m.reportCommandError(ctx, update.ChatID, "удалить объявление", err)
		}
		return m.chat.SendText(ctx, update.ChatID, fmt.Sprintf("🗑 Объявление #%d удалено", id))
	case "ban":
		fields := strings.Fields(update.Args)
		if len(fields) == 0 {
			return m.chat.SendText(ctx, update.ChatID, "Использование: /ban <user_id> [причина]")
		}
		id, ok := parseID(fields[0])
		if !ok {
			return m.chat.SendText(ctx, update.ChatID, "Использование: /ban <user_id> [причина]")
		}
		reason := strings.Join(fields[1:], " ")
		if _, err := m.market.BanUser(ctx, id, reason); err != nil {
			return m.reportCommandError(ctx, update.ChatID, "заблокировать пользователя", err)
		}
		return m.chat.SendText(ctx, update.ChatID, fmt.Sprintf("🚫 Пользователь %d заблокирован", id))
	case "unban":
		id, ok := parseID(update.Args)
		if !ok {
			return m.chat.SendText(ctx, update.ChatID, "Использование: /unban <user_id>")
		}
		if _, err := m.market.UnbanUser(ctx, id); err != nil {
			return m.reportCommandError(ctx, update.ChatID, "разблокировать пользователя", err)
		}
		return m.chat.SendText(ctx, update.ChatID, fmt.Sprintf("✅ Пользователь %d разблокирован", id))
	default:
		return nil
	}
}

func (m *moderationBot) resendPending(ctx context.Context, chatID int64) error {
	posts, err := m.market.Pending(ctx, pendingListLimit)
	if err != nil {
		return m.reportCommandError(ctx, chatID, "получить очередь", err)
	}
	if len(posts) == 0 {
		return m.chat.SendText(ctx, chatID, queueEmptyText)
	}

	sent := 0
	for _, post := range posts {
		if err := m.resender.Resend(ctx, post); err != nil {
			m.logger.Warn("resend moderation request failed", zap.Int64("post_id", post.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return m.chat.SendText(ctx, chatID, fmt.Sprintf("В очереди: %d, отправлено заново: %d", len(posts), sent))
}

func (m *moderationBot) reportCommandError(ctx context.Context, chatID int64, what string, err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return m.chat.SendText(ctx, chatID, "Не найдено.")
	}
	if errors.Is(err, errs.ErrInvalidTransition) {
		return m.chat.SendText(ctx, chatID, "Уже обработано.")
	}
	m.logger.Error("moderator command failed", zap.String("action", what), zap.Error(err))
	return m.chat.SendText(ctx, chatID, "Не удалось "+what+".")
}

func reasonOptions() []tginfra.ReasonOption {
	items := modsvc.ListRejectReasons()
	out := make([]tginfra.ReasonOption, 0, len(items))
	for _, item := range items {
		out = append(out, tginfra.ReasonOption{Code: item.ReasonCode, Label: item.Label})
	}
	return out
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
