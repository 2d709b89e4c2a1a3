package model

import (
	"strings"

	"github.com/kakcer47/BotTG/internal/domain/enums"
)

type PostQuery struct {
	Category string
	Search   string
	Tags     []string
	Sort     enums.SortMode
	Page     int
	Limit    int
	Append   bool
}

// PostFilter is the store-level filter; zero values mean "no constraint".
type PostFilter struct {
	Category   string
	Search     string
	Tags       []string
	AuthorID   int64
	OnlyIDs    []int64
	ExcludeIDs []int64
	// Restrict marks OnlyIDs as authoritative even when empty.
	Restrict bool
}

func (f PostFilter) Match(p Post) bool {
	if p.Status != enums.PostStatusApproved {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.AuthorID != 0 && p.AuthorID != f.AuthorID {
		return false
	}
	if f.Restrict && !containsID(f.OnlyIDs, p.ID) {
		return false
	}
	if containsID(f.ExcludeIDs, p.ID) {
		return false
	}
	if f.Search != "" && !containsFold(p.Description, f.Search) {
		return false
	}
	return p.HasTags(f.Tags)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
