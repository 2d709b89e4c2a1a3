package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/kakcer47/BotTG/internal/domain/model"
)

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendModerationRequest(ctx context.Context, chatID int64, text string, postID int64) error
}

// Notifier delivers moderation requests to the moderators chat and plain
// notices to users' private chats.
type Notifier struct {
	sender           Sender
	moderationChatID int64
}

func NewNotifier(sender Sender, moderationChatID int64) *Notifier {
	return &Notifier{sender: sender, moderationChatID: moderationChatID}
}

func (n *Notifier) RequestModeration(ctx context.Context, post model.Post) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("telegram notifier is not configured")
	}
	return n.sender.SendModerationRequest(ctx, n.moderationChatID, FormatModerationRequest(post), post.ID)
}

func (n *Notifier) NotifyUser(ctx context.Context, userID int64, text string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("telegram notifier is not configured")
	}
	return n.sender.SendText(ctx, userID, text)
}

func FormatModerationRequest(post model.Post) string {
	username := strings.TrimSpace(post.Creator.Username)
	if username == "" {
		username = "нет"
	}
	name := strings.TrimSpace(post.Creator.FirstName + " " + post.Creator.LastName)

	var b strings.Builder
	fmt.Fprintf(&b, "📝 Новое объявление #%d\n\n", post.ID)
	fmt.Fprintf(&b, "👤 От: %s\n", name)
	fmt.Fprintf(&b, "🆔 ID: %d\n", post.AuthorID)
	fmt.Fprintf(&b, "👤 Username: @%s\n", username)
	fmt.Fprintf(&b, "📂 Категория: %s\n\n", post.Category)
	fmt.Fprintf(&b, "📄 Текст:\n%s\n\n", post.Description)
	fmt.Fprintf(&b, "🏷 Теги: %s", strings.Join(post.Tags, ", "))
	return b.String()
}
