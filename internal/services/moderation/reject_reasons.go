package moderation

import (
	"sort"
	"strings"
)

const DefaultRejectReason = "RULES_VIOLATION"

type RejectReasonItem struct {
	ReasonCode string
	Label      string
	ReasonText string
}

type rejectReasonTemplate struct {
	Label      string
	ReasonText string
}

var rejectReasonTemplates = map[string]rejectReasonTemplate{
	"RULES_VIOLATION": {
		Label:      "Нарушение правил",
		ReasonText: "❌ Ваше объявление было отклонено модератором за нарушение правил",
	},
	"SPAM_ADS_LINKS": {
		Label:      "Спам/реклама/ссылки",
		ReasonText: "❌ Объявление отклонено: обнаружены признаки спама, рекламы или внешних ссылок.",
	},
	"DUPLICATE": {
		Label:      "Дубликат",
		ReasonText: "❌ Объявление отклонено: такое объявление уже опубликовано.",
	},
	"WRONG_CATEGORY": {
		Label:      "Не та категория",
		ReasonText: "❌ Объявление отклонено: выбрана неподходящая категория.",
	},
	"PROHIBITED": {
		Label:      "Запрещенный товар",
		ReasonText: "❌ Объявление отклонено: запрещённый товар или услуга.",
	},
}

func ListRejectReasons() []RejectReasonItem {
	codes := make([]string, 0, len(rejectReasonTemplates))
	for code := range rejectReasonTemplates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	items := make([]RejectReasonItem, 0, len(codes))
	for _, code := range codes {
		template := rejectReasonTemplates[code]
		items = append(items, RejectReasonItem{
			ReasonCode: code,
			Label:      strings.TrimSpace(template.Label),
			ReasonText: strings.TrimSpace(template.ReasonText),
		})
	}
	return items
}

// RejectReasonText returns the author-facing text for code, falling back to
// the generic rules violation text for unknown codes.
func RejectReasonText(code string) string {
	template, ok := rejectReasonTemplates[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		template = rejectReasonTemplates[DefaultRejectReason]
	}
	return template.ReasonText
}
