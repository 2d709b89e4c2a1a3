// Package ws is the live viewer transport: one websocket per viewer, JSON
// requests in, {type, payload} events out.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/services/broadcast"
	"github.com/kakcer47/BotTG/internal/services/market"
	"github.com/kakcer47/BotTG/internal/services/moderation"
)

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultMaxMessageBytes = 64 << 10
)

type Market interface {
	SyncUser(ctx context.Context, profile model.Profile) (market.SyncResult, error)
	CreatePost(ctx context.Context, userID int64, draft model.PostDraft) (market.CreateResult, error)
	QueryPosts(ctx context.Context, userID int64, q model.PostQuery) ([]model.Post, error)
	LikePost(ctx context.Context, userID, postID int64) (market.ToggleResult, error)
	FavoritePost(ctx context.Context, userID, postID int64) (market.ToggleResult, error)
	HidePost(ctx context.Context, userID, postID int64) (market.ToggleResult, error)
	ReportPost(ctx context.Context, userID, postID int64, reason string) (moderation.ReportResult, error)
	DeletePost(ctx context.Context, userID, postID int64) (model.Post, error)
	User(ctx context.Context, userID int64) (model.User, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID int64, kind string) (int64, bool, error)
}

// Config for viewer connections. Empty AllowedOrigins accepts any origin,
// since the mini app is opened from Telegram's webview.
type Config struct {
	WriteTimeout    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

type Handler struct {
	market   Market
	hub      *broadcast.Hub
	limiter  RateLimiter
	upgrader websocket.Upgrader
	cfg      Config
	logger   *zap.Logger
}

func NewHandler(market Market, hub *broadcast.Hub, limiter RateLimiter, cfg Config, logger *zap.Logger) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handler{
		market:  market,
		hub:     hub,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe()
	h.logger.Info("viewer connected", zap.String("subscription_id", sub.ID), zap.Int("viewers", h.hub.Len()))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go h.writeLoop(conn, sub)
	h.readLoop(ctx, conn, sub)

	h.hub.Unsubscribe(sub)
	_ = conn.Close()
	h.logger.Info("viewer disconnected", zap.String("subscription_id", sub.ID), zap.Int64("user_id", sub.UserID()))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription) {
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		select {
		case <-sub.Done():
			return
		default:
		}
		h.handle(ctx, sub, raw)
	}
}

// writeLoop is the only writer of data frames on conn.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *broadcast.Subscription) {
	ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case event := <-sub.Events():
			data, err := EncodeEvent(event)
			if err != nil {
				h.logger.Error("encode event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		case <-sub.Done():
			code := websocket.CloseGoingAway
			if err := sub.Err(); err != nil {
				code = websocket.CloseTryAgainLater
				h.logger.Debug("subscription dropped by hub", zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, ""),
				time.Now().Add(h.cfg.WriteTimeout),
			)
			return
		}
	}
}
