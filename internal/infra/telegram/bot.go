package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kakcer47/BotTG/internal/infra/httpclient"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

type MessageUpdate struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	FirstName string
	Text      string
}

type CommandUpdate struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	MessageID  int
	UserID     int64
	Username   string
	Data       string
}

type Handlers struct {
	OnMessage  func(context.Context, MessageUpdate) error
	OnCommand  func(context.Context, CommandUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
	// OnError receives handler errors; Listen keeps polling after them.
	OnError func(error)
}

func NewBot(token string, pollTimeout int) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	client := httpclient.New(time.Duration(pollTimeout+10) * time.Second)
	api, err := tgbotapi.NewBotAPIWithClient(strings.TrimSpace(token), tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api, pollTimeout: pollTimeout}, nil
}

func (b *Bot) Username() string {
	if b == nil || b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := dispatch(ctx, update, handlers); err != nil && handlers.OnError != nil {
				handlers.OnError(err)
			}
		}
	}
}

func dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if msg := update.Message; msg != nil && msg.From != nil && !msg.From.IsBot {
		if msg.IsCommand() {
			if handlers.OnCommand == nil {
				return nil
			}
			return handlers.OnCommand(ctx, CommandUpdate{
				ChatID:    msg.Chat.ID,
				MessageID: msg.MessageID,
				UserID:    msg.From.ID,
				Username:  msg.From.UserName,
				Command:   msg.Command(),
				Args:      strings.TrimSpace(msg.CommandArguments()),
			})
		}
		if handlers.OnMessage == nil {
			return nil
		}
		return handlers.OnMessage(ctx, MessageUpdate{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			UserID:    msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			Text:      strings.TrimSpace(msg.Text),
		})
	}

	if cb := update.CallbackQuery; cb != nil && cb.From != nil && handlers.OnCallback != nil {
		out := CallbackUpdate{
			CallbackID: cb.ID,
			UserID:     cb.From.ID,
			Username:   cb.From.UserName,
			Data:       cb.Data,
		}
		if cb.Message != nil {
			out.ChatID = cb.Message.Chat.ID
			out.MessageID = cb.Message.MessageID
		}
		return handlers.OnCallback(ctx, out)
	}
	return nil
}

func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendModerationRequest posts text with approve/reject buttons for postID.
func (b *Bot) SendModerationRequest(_ context.Context, chatID int64, text string, postID int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("moderation chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = ModerationKeyboard(postID)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send moderation request: %w", err)
	}
	return nil
}

// CloseModerationRequest replaces the buttons of a handled request with a
// status line.
func (b *Bot) CloseModerationRequest(_ context.Context, chatID int64, messageID int, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || messageID == 0 {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit moderation request: %w", err)
	}
	return nil
}

// ShowRejectReasons swaps the buttons of a moderation request for the list
// of rejection reasons.
func (b *Bot) ShowRejectReasons(_ context.Context, chatID int64, messageID int, postID int64, reasons []ReasonOption) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 || messageID == 0 {
		return nil
	}

	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, RejectReasonsKeyboard(postID, reasons))
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit moderation keyboard: %w", err)
	}
	return nil
}

// complaintCarrierText is an invisible left-to-right mark; Telegram refuses
// empty messages.
const complaintCarrierText = "\u200e"

// AttachComplaintButton replies to a group message with the complaint
// button and returns the id of the reply.
func (b *Bot) AttachComplaintButton(_ context.Context, chatID int64, messageID int, authorID int64) (int, error) {
	if b == nil || b.api == nil {
		return 0, fmt.Errorf("telegram bot is not initialized")
	}

	msg := tgbotapi.NewMessage(chatID, complaintCarrierText)
	msg.ReplyToMessageID = messageID
	msg.DisableNotification = true
	msg.ReplyMarkup = ComplaintKeyboard(messageID, authorID)
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("attach complaint button: %w", err)
	}
	return sent.MessageID, nil
}

func (b *Bot) AnswerCallback(_ context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

func (b *Bot) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}
	return nil
}

// Restrict forbids userID from sending messages in chatID.
func (b *Bot) Restrict(_ context.Context, chatID, userID int64) error {
	return b.setSendPermission(chatID, userID, false)
}

func (b *Bot) Unrestrict(_ context.Context, chatID, userID int64) error {
	return b.setSendPermission(chatID, userID, true)
}

func (b *Bot) setSendPermission(chatID, userID int64, allowed bool) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       allowed,
			CanSendMediaMessages:  allowed,
			CanSendOtherMessages:  allowed,
			CanAddWebPagePreviews: allowed,
		},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("restrict chat member: %w", err)
	}
	return nil
}

// IsChatAdmin reports whether userID is the creator or an administrator of
// chatID.
func (b *Bot) IsChatAdmin(_ context.Context, chatID, userID int64) (bool, error) {
	if b == nil || b.api == nil {
		return false, fmt.Errorf("telegram bot is not initialized")
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}
