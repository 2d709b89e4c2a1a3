package model

import "time"

type EventType string

const (
	EventUserSynced    EventType = "user_synced"
	EventPostCreated   EventType = "post_created"
	EventPosts         EventType = "posts"
	EventPostUpdated   EventType = "post_updated"
	EventPostDeleted   EventType = "post_deleted"
	EventLimitExceeded EventType = "limit_exceeded"
	EventBanned        EventType = "banned"
	EventReportSent    EventType = "report_sent"
	EventError         EventType = "error"
)

type Scope int

const (
	// ScopeRequester events go only to the subscription that caused them.
	ScopeRequester Scope = iota
	// ScopeBroadcast events go to every live subscription.
	ScopeBroadcast
)

// Event is a closed set: only types in this file implement it.
type Event interface {
	Type() EventType
	Scope() Scope
	sealed()
}

type UserSynced struct {
	User      User    `json:"user"`
	PostsLeft int     `json:"posts_left"`
	Liked     []int64 `json:"liked"`
	Favorites []int64 `json:"favorites"`
	Hidden    []int64 `json:"hidden"`
}

type PostCreated struct {
	Post       Post `json:"post"`
	PostsToday int  `json:"posts_today"`
	DailyQuota int  `json:"daily_quota"`
}

type PostsPage struct {
	Posts  []Post `json:"posts"`
	Page   int    `json:"page"`
	Append bool   `json:"append"`
}

// PostUpdated is global for status changes and personal for
// like/favorite/hide results, which are per-user view state.
type PostUpdated struct {
	Post      Post  `json:"post"`
	Liked     *bool `json:"liked,omitempty"`
	Favorited *bool `json:"favorited,omitempty"`
	Hidden    *bool `json:"hidden,omitempty"`
	Personal  bool  `json:"-"`
}

type PostDeleted struct {
	PostID int64  `json:"post_id"`
	Reason string `json:"reason"`
}

type LimitExceeded struct {
	DailyQuota int       `json:"daily_quota"`
	PostsToday int       `json:"posts_today"`
	ResetAt    time.Time `json:"reset_at"`
}

type Banned struct {
	Reason string `json:"reason,omitempty"`
}

type ReportSent struct {
	PostID         int64 `json:"post_id"`
	ComplaintCount int   `json:"complaint_count"`
	Deleted        bool  `json:"deleted"`
}

type ErrorEvent struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (UserSynced) Type() EventType    { return EventUserSynced }
func (PostCreated) Type() EventType   { return EventPostCreated }
func (PostsPage) Type() EventType     { return EventPosts }
func (PostUpdated) Type() EventType   { return EventPostUpdated }
func (PostDeleted) Type() EventType   { return EventPostDeleted }
func (LimitExceeded) Type() EventType { return EventLimitExceeded }
func (Banned) Type() EventType        { return EventBanned }
func (ReportSent) Type() EventType    { return EventReportSent }
func (ErrorEvent) Type() EventType    { return EventError }

func (UserSynced) Scope() Scope    { return ScopeRequester }
func (PostCreated) Scope() Scope   { return ScopeRequester }
func (PostsPage) Scope() Scope     { return ScopeRequester }
func (PostDeleted) Scope() Scope   { return ScopeBroadcast }
func (LimitExceeded) Scope() Scope { return ScopeRequester }
func (Banned) Scope() Scope        { return ScopeRequester }
func (ReportSent) Scope() Scope    { return ScopeRequester }
func (ErrorEvent) Scope() Scope    { return ScopeRequester }

func (e PostUpdated) Scope() Scope {
	if e.Personal {
		return ScopeRequester
	}
	return ScopeBroadcast
}

func (UserSynced) sealed()    {}
func (PostCreated) sealed()   {}
func (PostsPage) sealed()     {}
func (PostUpdated) sealed()   {}
func (PostDeleted) sealed()   {}
func (LimitExceeded) sealed() {}
func (Banned) sealed()        {}
func (ReportSent) sealed()    {}
func (ErrorEvent) sealed()    {}
