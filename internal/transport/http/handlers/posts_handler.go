package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kakcer47/BotTG/internal/domain/enums"
	"github.com/kakcer47/BotTG/internal/domain/errs"
	"github.com/kakcer47/BotTG/internal/domain/model"
	httperrors "github.com/kakcer47/BotTG/internal/transport/http/errors"
)

type PostQuerier interface {
	QueryPosts(ctx context.Context, userID int64, q model.PostQuery) ([]model.Post, error)
}

type PostReader interface {
	GetPost(ctx context.Context, id int64) (model.Post, error)
}

// PostsHandler is the read-only listing for clients without a socket.
type PostsHandler struct {
	market PostQuerier
	posts  PostReader
}

type postsResponsePayload struct {
	Posts []model.Post `json:"posts"`
	Page  int          `json:"page"`
}

func NewPostsHandler(market PostQuerier, posts PostReader) *PostsHandler {
	return &PostsHandler{market: market, posts: posts}
}

func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sort, ok := enums.ParseSortMode(query.Get("sort"))
	if !ok || sort == enums.SortMine || sort == enums.SortFavorites || sort == enums.SortHidden {
		writeBadRequest(w, "VALIDATION_ERROR", "unsupported sort")
		return
	}
	page, err := optionalInt(query.Get("page"))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "page must be a number")
		return
	}
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "limit must be a number")
		return
	}

	var tags []string
	if raw := strings.TrimSpace(query.Get("tags")); raw != "" {
		tags = strings.Split(raw, ",")
	}

	posts, err := h.market.QueryPosts(r.Context(), 0, model.PostQuery{
		Category: query.Get("category"),
		Search:   query.Get("search"),
		Tags:     tags,
		Sort:     sort,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if page <= 0 {
		page = 1
	}
	httperrors.Write(w, http.StatusOK, postsResponsePayload{Posts: posts, Page: page})
}

func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid post id")
		return
	}

	post, err := h.posts.GetPost(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if post.Status != enums.PostStatusApproved {
		httperrors.WriteError(w, errs.ErrNotFound)
		return
	}
	httperrors.Write(w, http.StatusOK, post)
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
