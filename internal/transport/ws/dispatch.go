package ws

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/metrics"
	"github.com/kakcer47/BotTG/internal/services/broadcast"
	"github.com/kakcer47/BotTG/internal/services/market"
)

const rateKind = "ws"

func (h *Handler) handle(ctx context.Context, sub *broadcast.Subscription, raw []byte) {
	req, meta, err := DecodeRequest(raw)
	if err != nil {
		h.reply(sub, meta, errorEvent(err, meta.RequestID))
		return
	}
	if meta.UserID > 0 {
		sub.Bind(meta.UserID)
	}

	event, err := h.dispatch(ctx, req)
	if err != nil {
		event = errorEvent(err, meta.RequestID)
		if errs.Code(err) == "internal_error" || errors.Is(err, errs.ErrStore) {
			h.logger.Error("request failed",
				zap.String("type", meta.Type),
				zap.Int64("user_id", meta.UserID),
				zap.Error(err),
			)
		}
	}
	h.reply(sub, meta, event)
}

func (h *Handler) reply(sub *broadcast.Subscription, meta RequestMeta, event model.Event) {
	outcome := "ok"
	if event != nil {
		switch e := event.(type) {
		case model.ErrorEvent:
			outcome = e.Code
		case model.LimitExceeded:
			outcome = "limit_exceeded"
		case model.Banned:
			outcome = "banned"
		}
	}
	kind := meta.Type
	if !knownType(kind) {
		kind = "unknown"
	}
	metrics.RequestsTotal.WithLabelValues(kind, outcome).Inc()

	if event != nil {
		h.hub.SendTo(sub, event)
	}
}

// dispatch runs one request. A nil event means the outcome reaches the
// requester through a broadcast.
func (h *Handler) dispatch(ctx context.Context, req Request) (model.Event, error) {
	meta := req.Meta()
	if meta.UserID <= 0 && meta.Type != TypeGetPosts {
		return nil, errs.Validation("user_id is required")
	}
	if meta.Type != TypeSyncUser && meta.UserID > 0 {
		if err := h.checkBanned(ctx, meta.UserID); err != nil {
			return nil, err
		}
	}
	if throttled(meta.Type) {
		if err := h.throttle(ctx, meta.UserID); err != nil {
			return nil, err
		}
	}

	switch r := req.(type) {
	case *SyncUserRequest:
		res, err := h.market.SyncUser(ctx, model.Profile{
			UserID:    r.UserID,
			Username:  r.Username,
			FirstName: r.FirstName,
			LastName:  r.LastName,
			PhotoURL:  r.PhotoURL,
		})
		if err != nil {
			return nil, err
		}
		return model.UserSynced{
			User:      res.User,
			PostsLeft: res.Usage.PostsLeft,
			Liked:     res.User.Liked.Slice(),
			Favorites: res.User.Favorites.Slice(),
			Hidden:    res.User.Hidden.Slice(),
		}, nil

	case *CreatePostRequest:
		res, err := h.market.CreatePost(ctx, r.UserID, model.PostDraft{
			Description: r.Description,
			Category:    r.Category,
			Tags:        r.Tags,
			Creator:     r.Creator,
		})
		if err != nil {
			return nil, err
		}
		return model.PostCreated{
			Post:       res.Post,
			PostsToday: res.Usage.PostsToday,
			DailyQuota: res.Usage.DailyQuota,
		}, nil

	case *GetPostsRequest:
		q, err := r.Query()
		if err != nil {
			return nil, err
		}
		posts, err := h.market.QueryPosts(ctx, r.UserID, q)
		if err != nil {
			return nil, err
		}
		page := q.Page
		if page <= 0 {
			page = 1
		}
		return model.PostsPage{Posts: posts, Page: page, Append: q.Append}, nil

	case *PostActionRequest:
		return h.postAction(ctx, r)

	case *ReportPostRequest:
		res, err := h.market.ReportPost(ctx, r.UserID, r.PostID, r.Reason)
		if err != nil {
			return nil, err
		}
		return model.ReportSent{PostID: res.PostID, ComplaintCount: res.ComplaintCount, Deleted: res.Deleted}, nil

	default:
		return nil, errs.Validation("unknown request type %q", meta.Type)
	}
}

func (h *Handler) postAction(ctx context.Context, r *PostActionRequest) (model.Event, error) {
	var (
		res market.ToggleResult
		err error
	)
	switch r.Type {
	case TypeLikePost:
		res, err = h.market.LikePost(ctx, r.UserID, r.PostID)
	case TypeFavoritePost:
		res, err = h.market.FavoritePost(ctx, r.UserID, r.PostID)
	case TypeHidePost:
		res, err = h.market.HidePost(ctx, r.UserID, r.PostID)
	case TypeDeletePost:
		_, err = h.market.DeletePost(ctx, r.UserID, r.PostID)
		return nil, err
	default:
		return nil, errs.Validation("unknown request type %q", r.Type)
	}
	if err != nil {
		return nil, err
	}

	active := res.Active
	event := model.PostUpdated{Post: res.Post, Personal: true}
	switch res.Set {
	case enums.SetLiked:
		event.Liked = &active
	case enums.SetFavorites:
		event.Favorited = &active
	case enums.SetHidden:
		event.Hidden = &active
	}
	return event, nil
}

func (h *Handler) checkBanned(ctx context.Context, userID int64) error {
	user, err := h.market.User(ctx, userID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			h.logger.Warn("ban check failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil
	}
	if user.IsBanned {
		return &market.BanError{Reason: user.BanReason}
	}
	return nil
}

func knownType(kind string) bool {
	switch kind {
	case TypeSyncUser, TypeCreatePost, TypeGetPosts, TypeLikePost, TypeFavoritePost,
		TypeHidePost, TypeReportPost, TypeDeletePost:
		return true
	default:
		return false
	}
}

func throttled(kind string) bool {
	switch kind {
	case TypeSyncUser, TypeGetPosts:
		return false
	default:
		return true
	}
}

func (h *Handler) throttle(ctx context.Context, userID int64) error {
	if h.limiter == nil || userID <= 0 {
		return nil
	}
	retryAfter, allowed, err := h.limiter.Allow(ctx, userID, rateKind)
	if err != nil {
		h.logger.Warn("rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("retry after %ds: %w", retryAfter, errs.ErrRateLimited)
	}
	return nil
}

var errorMessages = map[string]string{
	"not_found":          "post not found",
	"already_reported":   "you have already reported this post",
	"invalid_transition": "post can no longer be changed",
	"forbidden":          "not allowed",
	"store_unavailable":  "storage is temporarily unavailable",
	"internal_error":     "internal error",
}

func errorEvent(err error, requestID string) model.Event {
	var limit *market.LimitError
	if errors.As(err, &limit) {
		return model.LimitExceeded{
			DailyQuota: limit.Usage.DailyQuota,
			PostsToday: limit.Usage.PostsToday,
			ResetAt:    limit.Usage.ResetAt.UTC(),
		}
	}
	var ban *market.BanError
	if errors.As(err, &ban) {
		return model.Banned{Reason: ban.Reason}
	}
	if errors.Is(err, errs.ErrBanned) {
		return model.Banned{}
	}

	code := errs.Code(err)
	message, ok := errorMessages[code]
	if !ok {
		message = err.Error()
	}
	return model.ErrorEvent{Code: code, Message: message, RequestID: requestID}
}
