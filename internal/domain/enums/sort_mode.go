package enums

import "strings"

type SortMode string

const (
	SortNewest    SortMode = "new"
	SortOldest    SortMode = "old"
	SortRating    SortMode = "rating"
	SortMine      SortMode = "mine"
	SortFavorites SortMode = "favorites"
	SortHidden    SortMode = "hidden"
)

// ParseSortMode maps client values to a sort mode; empty means newest first.
func ParseSortMode(raw string) (SortMode, bool) {
	switch SortMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortNewest, "newest":
		return SortNewest, true
	case SortOldest, "oldest":
		return SortOldest, true
	case SortRating:
		return SortRating, true
	case SortMine:
		return SortMine, true
	case SortFavorites:
		return SortFavorites, true
	case SortHidden:
		return SortHidden, true
	default:
		return "", false
	}
}

type UserSet string

const (
	SetLiked     UserSet = "liked"
	SetFavorites UserSet = "favorites"
	SetHidden    UserSet = "hidden"
	SetReported  UserSet = "reported"
)

func (s UserSet) Valid() bool {
	switch s {
	case SetLiked, SetFavorites, SetHidden, SetReported:
		return true
	default:
		return false
	}
}
