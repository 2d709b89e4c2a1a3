package handlers

import (
	"net/http"

	"github.com/kakcer47/BotTG/internal/services/quota"
	httperrors "github.com/kakcer47/BotTG/internal/transport/http/errors"
)

type WindowStatsSource interface {
	Stats() quota.WindowStats
}

type WindowStatsHandler struct {
	window WindowStatsSource
}

func NewWindowStatsHandler(window WindowStatsSource) *WindowStatsHandler {
	return &WindowStatsHandler{window: window}
}

func (h *WindowStatsHandler) Handle(w http.ResponseWriter, _ *http.Request) {
	if h.window == nil {
		writeInternal(w, "WINDOW_UNAVAILABLE", "activity window is not running")
		return
	}
	httperrors.Write(w, http.StatusOK, h.window.Stats())
}

type ViewerCounter interface {
	Len() int
}

type CacheSizer interface {
	Len() (posts, users int)
}

type MarketStatsHandler struct {
	hub   ViewerCounter
	cache CacheSizer
}

type marketStatsPayload struct {
	Viewers     int `json:"viewers"`
	CachedPosts int `json:"cached_posts"`
	CachedUsers int `json:"cached_users"`
}

func NewMarketStatsHandler(hub ViewerCounter, cache CacheSizer) *MarketStatsHandler {
	return &MarketStatsHandler{hub: hub, cache: cache}
}

func (h *MarketStatsHandler) Handle(w http.ResponseWriter, _ *http.Request) {
	var payload marketStatsPayload
	if h.hub != nil {
		payload.Viewers = h.hub.Len()
	}
	if h.cache != nil {
		payload.CachedPosts, payload.CachedUsers = h.cache.Len()
	}
	httperrors.Write(w, http.StatusOK, payload)
}
