package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/domain/rules"
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// NormalizeTags trims, drops empties and removes duplicates while keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Draft normalizes draft in place and rejects empty or oversized content.
func Draft(draft *model.PostDraft) error {
	draft.Description = strings.TrimSpace(draft.Description)
	draft.Category = strings.TrimSpace(draft.Category)
	draft.Tags = NormalizeTags(draft.Tags)

	if !Required(draft.Description) {
		return errs.Validation("description is required")
	}
	if utf8.RuneCountInString(draft.Description) > rules.MaxDescriptionLength {
		return errs.Validation("description exceeds %d characters", rules.MaxDescriptionLength)
	}
	if len(draft.Tags) > rules.MaxTags {
		return errs.Validation("at most %d tags allowed", rules.MaxTags)
	}
	for _, tag := range draft.Tags {
		if utf8.RuneCountInString(tag) > rules.MaxTagLength {
			return errs.Validation("tag %q is too long", tag)
		}
	}
	return nil
}
