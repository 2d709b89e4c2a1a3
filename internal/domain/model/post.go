package model

import (
	"time"

	"github.com/kakcer47/BotTG/internal/domain/enums"
)

type Creator struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Post struct {
	ID             int64            `json:"id"`
	AuthorID       int64            `json:"author_id"`
	Description    string           `json:"description"`
	Category       string           `json:"category"`
	Tags           []string         `json:"tags"`
	LikeCount      int              `json:"likes"`
	Status         enums.PostStatus `json:"status"`
	ComplaintCount int              `json:"complaint_count"`
	Creator        Creator          `json:"creator"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (p Post) Clone() Post {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	return out
}

// HasTags reports whether the post carries every tag in want.
func (p Post) HasTags(want []string) bool {
	for _, tag := range want {
		found := false
		for _, have := range p.Tags {
			if have == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type PostDraft struct {
	Description string
	Category    string
	Tags        []string
	Creator     Creator
}
