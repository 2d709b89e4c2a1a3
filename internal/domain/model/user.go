package model

import (
	"sort"
	"time"

	"github.com/kakcer47/BotTG/internal/domain/enums"
)

type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Profile struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
}

type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	PhotoURL      string    `json:"photo_url"`
	IsBanned      bool      `json:"is_banned"`
	BanReason     string    `json:"ban_reason,omitempty"`
	DailyQuota    int       `json:"daily_quota"`
	PostsToday    int       `json:"posts_today"`
	LastResetDate string    `json:"last_reset_date"`
	Liked         IDSet     `json:"-"`
	Favorites     IDSet     `json:"-"`
	Hidden        IDSet     `json:"-"`
	Reported      IDSet     `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) Clone() User {
	out := u
	out.Liked = u.Liked.Clone()
	out.Favorites = u.Favorites.Clone()
	out.Hidden = u.Hidden.Clone()
	out.Reported = u.Reported.Clone()
	return out
}

// Set returns the membership set named by name; nil for unknown names.
func (u *User) Set(name enums.UserSet) IDSet {
	switch name {
	case enums.SetLiked:
		if u.Liked == nil {
			u.Liked = IDSet{}
		}
		return u.Liked
	case enums.SetFavorites:
		if u.Favorites == nil {
			u.Favorites = IDSet{}
		}
		return u.Favorites
	case enums.SetHidden:
		if u.Hidden == nil {
			u.Hidden = IDSet{}
		}
		return u.Hidden
	case enums.SetReported:
		if u.Reported == nil {
			u.Reported = IDSet{}
		}
		return u.Reported
	default:
		return nil
	}
}
