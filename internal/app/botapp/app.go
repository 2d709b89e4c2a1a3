package botapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kakcer47/BotTG/internal/config"
	tginfra "github.com/kakcer47/BotTG/internal/infra/telegram"
	"github.com/kakcer47/BotTG/internal/jobs/cleanup"
	"github.com/kakcer47/BotTG/internal/metrics"
	"github.com/kakcer47/BotTG/internal/services/quota"
	"github.com/kakcer47/BotTG/internal/transport/http/handlers"
)

const (
	reduceUsage  = "Использование: /reduce <user_id>"
	noRightsText = "⛔ Команда доступна только администраторам группы."
	reducedText  = "✅ Лимит пользователя %d уменьшен."

	complaintAcceptedText = "Жалоба принята (%d/%d)"
	complaintRepeatText   = "Вы уже пожаловались на это сообщение"
	complaintOwnText      = "Нельзя пожаловаться на своё сообщение"
	complaintDeletedText  = "Сообщение удалено по жалобам"
	complaintFailedText   = "Не удалось удалить сообщение"

	helpText = "Бот следит за активностью в группе: не больше %d сообщений подряд от одного участника.\n" +
		"/reduce <user_id> - освободить одно место в окне участника\n" +
		"⚠️ под сообщением - жалоба, после %d жалоб сообщение удаляется"
)

type groupChat interface {
	Listen(ctx context.Context, handlers tginfra.Handlers) error
	SendText(ctx context.Context, chatID int64, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	Restrict(ctx context.Context, chatID, userID int64) error
	Unrestrict(ctx context.Context, chatID, userID int64) error
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
	AttachComplaintButton(ctx context.Context, chatID int64, messageID int, authorID int64) (int, error)
}

// App is the group activity bot: it keeps at most Window.Size consecutive
// messages per member and mutes whoever overflows until a sweep or an admin
// releases them. Members can also vote a message out with complaints.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	chat     groupChat
	window   *quota.Window
	sweepJob *cleanup.Job
	server   *http.Server
	admins   map[int64]struct{}
}

func New(_ context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if strings.TrimSpace(cfg.GroupBot.Token) == "" {
		return nil, fmt.Errorf("MODERATOR_BOT_TOKEN is required for the group bot")
	}

	bot, err := tginfra.NewBot(cfg.GroupBot.Token, cfg.GroupBot.PollTimeout)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info("group bot authorized", zap.String("username", bot.Username()))

	return newApp(cfg, bot, logger), nil
}

func newApp(cfg config.Config, chat groupChat, logger *zap.Logger) *App {
	window := quota.NewWindow(quota.WindowConfig{
		Size:               cfg.Window.Size,
		TTL:                cfg.Window.TTL,
		ComplaintThreshold: cfg.Market.ComplaintThreshold,
	})

	admins := make(map[int64]struct{}, len(cfg.GroupBot.AdminIDs))
	for _, id := range cfg.GroupBot.AdminIDs {
		admins[id] = struct{}{}
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		chat:     chat,
		window:   window,
		sweepJob: cleanup.NewWindowSweepJob(window, chat, logger.Named("sweep")),
		admins:   admins,
	}
	a.server = &http.Server{
		Addr:         cfg.GroupBot.HTTPAddr,
		Handler:      a.routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return a
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	health := handlers.NewHealthHandler()
	stats := handlers.NewWindowStatsHandler(a.window)

	r.Get("/healthz", health.Get)
	r.Get("/health", health.Get)
	r.Get("/stats/windows", stats.Handle)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("group bot started",
		zap.Int64("chat_id", a.cfg.GroupBot.ChatID),
		zap.Int("window_size", a.cfg.Window.Size),
		zap.Duration("window_ttl", a.window.TTL()),
		zap.String("http_addr", a.cfg.GroupBot.HTTPAddr),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.runSweepLoop(gctx)
	})
	g.Go(func() error {
		err := a.chat.Listen(gctx, tginfra.Handlers{
			OnMessage:  a.handleMessage,
			OnCommand:  a.handleCommand,
			OnCallback: a.handleCallback,
			OnError: func(err error) {
				a.logger.Warn("group update failed", zap.Error(err))
			},
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("group bot stopped")
	return err
}

func (a *App) runSweepLoop(ctx context.Context) error {
	interval := a.cfg.Window.SweepInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.sweepJob.Run(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *App) watches(chatID int64) bool {
	// Private chats have positive ids; the window only applies to groups.
	if chatID >= 0 {
		return false
	}
	return a.cfg.GroupBot.ChatID == 0 || a.cfg.GroupBot.ChatID == chatID
}

func (a *App) handleMessage(ctx context.Context, update tginfra.MessageUpdate) error {
	if !a.watches(update.ChatID) {
		return nil
	}

	decision := a.window.RecordMessage(update.ChatID, update.UserID, update.MessageID)
	if !decision.Restrict {
		if _, err := a.chat.AttachComplaintButton(ctx, update.ChatID, update.MessageID, update.UserID); err != nil {
			a.logger.Warn("failed to attach complaint button",
				zap.Int64("chat_id", update.ChatID),
				zap.Int("message_id", update.MessageID),
				zap.Error(err),
			)
		}
		return nil
	}

	logger := a.logger.With(
		zap.Int64("chat_id", update.ChatID),
		zap.Int64("user_id", update.UserID),
		zap.Int("message_id", decision.OverflowMessageID),
	)
	if err := a.chat.DeleteMessage(ctx, update.ChatID, decision.OverflowMessageID); err != nil {
		logger.Warn("failed to delete overflow message", zap.Error(err))
	}
	if err := a.chat.Restrict(ctx, update.ChatID, update.UserID); err != nil {
		return fmt.Errorf("restrict member %d: %w", update.UserID, err)
	}
	logger.Info("member restricted by activity window")
	return nil
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	messageID, authorID, ok := tginfra.ParseComplaintCallback(update.Data)
	if !ok || !a.watches(update.ChatID) {
		return a.chat.AnswerCallback(ctx, update.CallbackID, "")
	}

	result := a.window.Complain(update.ChatID, messageID, authorID, update.UserID)
	switch {
	case result.Own:
		return a.chat.AnswerCallback(ctx, update.CallbackID, complaintOwnText)
	case result.Duplicate:
		return a.chat.AnswerCallback(ctx, update.CallbackID, complaintRepeatText)
	case !result.Reached:
		return a.chat.AnswerCallback(ctx, update.CallbackID, fmt.Sprintf(complaintAcceptedText, result.Count, result.Threshold))
	}

	logger := a.logger.With(
		zap.Int64("chat_id", update.ChatID),
		zap.Int64("user_id", result.AuthorID),
		zap.Int("message_id", messageID),
	)
	if err := a.chat.DeleteMessage(ctx, update.ChatID, messageID); err != nil {
		_ = a.chat.AnswerCallback(ctx, update.CallbackID, complaintFailedText)
		return fmt.Errorf("delete reported message %d: %w", messageID, err)
	}
	metrics.GroupComplaintDeletionsTotal.Inc()

	// The button reply is orphaned once the message is gone.
	if update.MessageID != 0 {
		if err := a.chat.DeleteMessage(ctx, update.ChatID, update.MessageID); err != nil {
			logger.Warn("failed to delete complaint button", zap.Error(err))
		}
	}

	unrestricted := a.window.ReleaseMessage(update.ChatID, result.AuthorID, messageID)
	if unrestricted {
		if err := a.chat.Unrestrict(ctx, update.ChatID, result.AuthorID); err != nil {
			return fmt.Errorf("unrestrict member %d: %w", result.AuthorID, err)
		}
	}
	logger.Info("message deleted by complaints",
		zap.Int("complaints", result.Count),
		zap.Bool("unrestricted", unrestricted),
	)
	return a.chat.AnswerCallback(ctx, update.CallbackID, complaintDeletedText)
}

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch strings.ToLower(update.Command) {
	case "start", "help":
		return a.chat.SendText(ctx, update.ChatID, fmt.Sprintf(helpText, a.cfg.Window.Size, a.cfg.Market.ComplaintThreshold))
	case "reduce":
		return a.reduce(ctx, update)
	default:
		return nil
	}
}

func (a *App) reduce(ctx context.Context, update tginfra.CommandUpdate) error {
	if !a.watches(update.ChatID) {
		return nil
	}

	allowed, err := a.isAdmin(ctx, update.ChatID, update.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return a.chat.SendText(ctx, update.ChatID, noRightsText)
	}

	target, err := strconv.ParseInt(strings.TrimSpace(update.Args), 10, 64)
	if err != nil || target <= 0 {
		return a.chat.SendText(ctx, update.ChatID, reduceUsage)
	}

	released := a.window.ReleaseOldest(update.ChatID, target)
	if released {
		if err := a.chat.Unrestrict(ctx, update.ChatID, target); err != nil {
			return fmt.Errorf("unrestrict member %d: %w", target, err)
		}
	}

	a.logger.Info("window reduced by admin",
		zap.Int64("chat_id", update.ChatID),
		zap.Int64("user_id", target),
		zap.Int64("admin_id", update.UserID),
		zap.Bool("unrestricted", released),
	)
	return a.chat.SendText(ctx, update.ChatID, fmt.Sprintf(reducedText, target))
}

func (a *App) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if _, ok := a.admins[userID]; ok {
		return true, nil
	}
	ok, err := a.chat.IsChatAdmin(ctx, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("check chat admin: %w", err)
	}
	return ok, nil
}

func (a *App) Close() {
	if a.server != nil {
		_ = a.server.Close()
	}
}
