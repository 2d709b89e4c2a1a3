package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

func ModerationKeyboard(postID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(postID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Принять", "mod:"+ActionApprove+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", "mod:"+ActionReject+":"+id),
		),
	)
}

// ParseModerationCallback decodes "mod:<action>:<post_id>[:<reason_code>]".
func ParseModerationCallback(data string) (action string, postID int64, reason string, ok bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != "mod" {
		return "", 0, "", false
	}
	if parts[1] != ActionApprove && parts[1] != ActionReject {
		return "", 0, "", false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, "", false
	}
	if len(parts) == 4 {
		reason = parts[3]
	}
	return parts[1], id, reason, true
}

type ReasonOption struct {
	Code  string
	Label string
}

// RejectReasonsKeyboard lists one button per reason; each button carries the
// reason code as the fourth callback segment.
func RejectReasonsKeyboard(postID int64, reasons []ReasonOption) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(postID, 10)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reasons)+1)
	for _, reason := range reasons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(reason.Label, "mod:"+ActionReject+":"+id+":"+reason.Code),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Принять", "mod:"+ActionApprove+":"+id),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ComplaintKeyboard(messageID int, authorID int64) tgbotapi.InlineKeyboardMarkup {
	data := "complain:" + strconv.Itoa(messageID) + ":" + strconv.FormatInt(authorID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚠️ Пожаловаться", data),
		),
	)
}

// ParseComplaintCallback decodes "complain:<message_id>:<author_id>".
func ParseComplaintCallback(data string) (messageID int, authorID int64, ok bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != "complain" {
		return 0, 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return 0, 0, false
	}
	author, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || author <= 0 {
		return 0, 0, false
	}
	return id, author, true
}
