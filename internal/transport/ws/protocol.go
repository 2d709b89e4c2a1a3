package ws

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
)

const (
	TypeSyncUser     = "sync_user"
	TypeCreatePost   = "create_post"
	TypeGetPosts     = "get_posts"
	TypeLikePost     = "like_post"
	TypeFavoritePost = "favorite_post"
	TypeHidePost     = "hide_post"
	TypeReportPost   = "report_post"
	TypeDeletePost   = "delete_post"
)

// Request is a decoded inbound message. Only the types below implement it.
type Request interface {
	Kind() string
	Meta() RequestMeta
	request()
}

type RequestMeta struct {
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	RequestID string `json:"request_id,omitempty"`
}

func (m RequestMeta) Kind() string      { return m.Type }
func (m RequestMeta) Meta() RequestMeta { return m }
func (RequestMeta) request()            {}

type SyncUserRequest struct {
	RequestMeta
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
}

type CreatePostRequest struct {
	RequestMeta
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Tags        []string      `json:"tags"`
	Creator     model.Creator `json:"creator"`
}

type GetPostsRequest struct {
	RequestMeta
	Page     int          `json:"page"`
	Limit    int          `json:"limit"`
	Category string       `json:"category"`
	Search   string       `json:"search"`
	Tags     []string     `json:"tags"`
	Append   bool         `json:"append"`
	Filters  PostsFilters `json:"filters"`
}

type PostsFilters struct {
	Sort     string   `json:"sort"`
	Category string   `json:"category"`
	Search   string   `json:"search"`
	Tags     []string `json:"tags"`
}

// PostActionRequest covers like_post, favorite_post, hide_post and
// delete_post.
type PostActionRequest struct {
	RequestMeta
	PostID int64 `json:"post_id"`
}

type ReportPostRequest struct {
	RequestMeta
	PostID int64  `json:"post_id"`
	Reason string `json:"reason"`
}

// DecodeRequest parses one inbound frame. The returned meta is filled as far
// as it could be read, so errors can still be correlated.
func DecodeRequest(raw []byte) (Request, RequestMeta, error) {
	var meta RequestMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, meta, errs.Validation("invalid json")
	}
	meta.Type = strings.TrimSpace(meta.Type)

	var req Request
	switch meta.Type {
	case TypeSyncUser:
		req = &SyncUserRequest{}
	case TypeCreatePost:
		req = &CreatePostRequest{}
	case TypeGetPosts:
		req = &GetPostsRequest{}
	case TypeLikePost, TypeFavoritePost, TypeHidePost, TypeDeletePost:
		req = &PostActionRequest{}
	case TypeReportPost:
		req = &ReportPostRequest{}
	case "":
		return nil, meta, errs.Validation("type is required")
	default:
		return nil, meta, errs.Validation("unknown request type %q", meta.Type)
	}

	if err := json.Unmarshal(raw, req); err != nil {
		return nil, meta, errs.Validation("invalid %s payload", meta.Type)
	}
	return req, meta, nil
}

// Query merges top-level and nested filter fields; nested ones win.
func (r *GetPostsRequest) Query() (model.PostQuery, error) {
	sort, ok := enums.ParseSortMode(r.Filters.Sort)
	if !ok {
		return model.PostQuery{}, errs.Validation("unknown sort %q", r.Filters.Sort)
	}
	q := model.PostQuery{
		Category: r.Category,
		Search:   r.Search,
		Tags:     r.Tags,
		Sort:     sort,
		Page:     r.Page,
		Limit:    r.Limit,
		Append:   r.Append,
	}
	if r.Filters.Category != "" {
		q.Category = r.Filters.Category
	}
	if r.Filters.Search != "" {
		q.Search = r.Filters.Search
	}
	if len(r.Filters.Tags) > 0 {
		q.Tags = r.Filters.Tags
	}
	return q, nil
}

type envelope struct {
	Type    model.EventType `json:"type"`
	Payload model.Event     `json:"payload"`
}

func EncodeEvent(event model.Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("encode event: nil event")
	}
	data, err := json.Marshal(envelope{Type: event.Type(), Payload: event})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type(), err)
	}
	return data, nil
}
