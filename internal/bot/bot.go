// Package bot is the Telegram front end: it walks a user through entering a
// route and replies with the weather verdict for every point.
package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/dialogue"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

// DefaultDelay is applied before every update when Options.Delay is unset.
const DefaultDelay = 300 * time.Millisecond

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Planner evaluates a route given as coordinates.
type Planner interface {
	EvaluatePoints(ctx context.Context, points []models.Point, days, dayIndex int) ([]route.PointVerdict, error)
}

// Options tune the update loop.
type Options struct {
	Delay       time.Duration
	PollTimeout int
	Language    string
}

// Bot handles updates one at a time.
type Bot struct {
	api         API
	planner     Planner
	store       dialogue.Store
	logger      *zap.Logger
	delay       time.Duration
	pollTimeout int
	lang        string
}

// New creates a bot. A negative delay disables the pause between updates.
func New(api API, planner Planner, store dialogue.Store, logger *zap.Logger, opts Options) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	if delay < 0 {
		delay = 0
	}
	lang := opts.Language
	if lang == "" {
		lang = conditions.LangRU
	}
	return &Bot{
		api:         api,
		planner:     planner,
		store:       store,
		logger:      logger,
		delay:       delay,
		pollTimeout: opts.PollTimeout,
		lang:        lang,
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("bot started", zap.Duration("update_delay", b.delay))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if !b.pause(ctx) {
				return nil
			}
			b.Handle(ctx, upd)
		}
	}
}

func (b *Bot) pause(ctx context.Context) bool {
	if b.delay <= 0 {
		return true
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Handle dispatches a single update.
func (b *Bot) Handle(ctx context.Context, upd tgbotapi.Update) {
	id := uuid.New().String()
	logger := b.logger.With(zap.String("correlation_id", id), zap.Int("update_id", upd.UpdateID))
	ctx = observability.WithCorrelationID(ctx, id)
	ctx = observability.WithLogger(ctx, logger)

	var (
		kind string
		err  error
	)
	switch {
	case upd.CallbackQuery != nil:
		kind = "callback"
		err = b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.IsCommand():
		kind = "command"
		err = b.handleCommand(ctx, upd.Message)
	case upd.Message != nil && upd.Message.Location != nil:
		kind = "location"
		err = b.handleLocation(ctx, upd.Message)
	case upd.Message != nil && upd.Message.Text != "":
		kind = "text"
		err = b.handleText(ctx, upd.Message)
	default:
		kind = "ignored"
	}
	observability.BotUpdatesTotal.WithLabelValues(kind).Inc()
	if err != nil {
		logger.Error("update failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		return b.send(chatID, textStart, startKeyboard())
	case "help":
		return b.send(chatID, textHelp, nil)
	case "weather":
		return b.beginRoute(ctx, chatID, userOf(msg.From, chatID))
	default:
		return b.send(chatID, textUnknownCommand, nil)
	}
}

func (b *Bot) beginRoute(ctx context.Context, chatID, userID int64) error {
	sess, err := b.store.Load(ctx, userID)
	if err != nil {
		return b.fail(chatID, err)
	}
	sess.Begin()
	if err := b.store.Save(ctx, sess); err != nil {
		return b.fail(chatID, err)
	}
	return b.send(chatID, textAskStart, locationInputKeyboard())
}

func (b *Bot) handleLocation(ctx context.Context, msg *tgbotapi.Message) error {
	point := models.Point{Coordinates: models.Coordinates{
		Latitude:  msg.Location.Latitude,
		Longitude: msg.Location.Longitude,
	}}
	return b.receive(ctx, msg, func(s *dialogue.Session) error { return s.ReceivePoint(point) })
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	return b.receive(ctx, msg, func(s *dialogue.Session) error { return s.ReceiveText(msg.Text) })
}

// receive applies a point event to the sender's session and prompts for the next step.
func (b *Bot) receive(ctx context.Context, msg *tgbotapi.Message, apply func(*dialogue.Session) error) error {
	chatID := msg.Chat.ID
	sess, err := b.store.Load(ctx, userOf(msg.From, chatID))
	if err != nil {
		return b.fail(chatID, err)
	}
	if !sess.AcceptsPoint() {
		return b.send(chatID, textNoRoute, nil)
	}
	before := sess.State
	if err := apply(sess); err != nil {
		if errors.Is(err, dialogue.ErrCoordinateFormat) {
			return b.send(chatID, textBadCoordinates, nil)
		}
		return b.fail(chatID, err)
	}
	if err := b.store.Save(ctx, sess); err != nil {
		return b.fail(chatID, err)
	}

	switch {
	case sess.State == dialogue.StateInputEndPoint:
		return b.send(chatID, textAskEnd, locationInputKeyboard())
	case before == dialogue.StateInputEndPoint:
		return b.send(chatID, textWaypointOrGo, waypointKeyboard())
	default:
		return b.send(chatID, textWaypointAdded, waypointKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		observability.LoggerFrom(ctx, b.logger).Warn("callback ack failed", zap.Error(err))
	}

	var chatID int64
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}
	userID := userOf(cq.From, chatID)
	if chatID == 0 {
		chatID = userID
	}

	switch cq.Data {
	case cbWeather:
		return b.beginRoute(ctx, chatID, userID)
	case cbBackToMenu, cbCancelRoute:
		if err := b.store.Delete(ctx, userID); err != nil {
			return b.fail(chatID, err)
		}
		text := textMenu
		if cq.Data == cbCancelRoute {
			text = textCancelled
		}
		return b.send(chatID, text, startKeyboard())
	}

	sess, err := b.store.Load(ctx, userID)
	if err != nil {
		return b.fail(chatID, err)
	}

	switch cq.Data {
	case cbLocationMap:
		if !sess.AcceptsPoint() {
			return b.send(chatID, textNoRoute, nil)
		}
		return b.send(chatID, textAskLocation, locationRequestKeyboard())
	case cbLocationManual:
		return b.manualEntry(ctx, chatID, sess)
	case cbAddWaypoint:
		if sess.State != dialogue.StateInputIntermediatePoints {
			return b.send(chatID, textNoRoute, nil)
		}
		return b.send(chatID, textAskWaypoint+"\n"+textAskManualPoint, locationRequestKeyboard())
	case cbSelectForecast:
		if err := sess.ProceedToForecast(); err != nil {
			return b.send(chatID, textNoRoute, nil)
		}
		if err := b.store.Save(ctx, sess); err != nil {
			return b.fail(chatID, err)
		}
		return b.send(chatID, textAskInterval, intervalKeyboard())
	}

	if days, ok := parseInterval(cq.Data); ok {
		return b.forecast(ctx, chatID, sess, days)
	}
	observability.LoggerFrom(ctx, b.logger).Warn("unknown callback", zap.String("data", cq.Data))
	return nil
}

func (b *Bot) manualEntry(ctx context.Context, chatID int64, sess *dialogue.Session) error {
	switch sess.State {
	case dialogue.StateInputStartPoint, dialogue.StateManualInputStartPoint:
		if err := sess.RequestManualEntry(); err != nil {
			return b.fail(chatID, err)
		}
		if err := b.store.Save(ctx, sess); err != nil {
			return b.fail(chatID, err)
		}
		return b.send(chatID, textAskManualStart, nil)
	case dialogue.StateInputEndPoint:
		return b.send(chatID, textAskManualEnd, nil)
	case dialogue.StateInputIntermediatePoints:
		return b.send(chatID, textAskManualPoint, nil)
	default:
		return b.send(chatID, textNoRoute, nil)
	}
}

// forecast evaluates the collected route. The session is cleared whatever the outcome.
func (b *Bot) forecast(ctx context.Context, chatID int64, sess *dialogue.Session, days int) error {
	if sess.State != dialogue.StateSelectForecastInterval {
		return b.send(chatID, textNoRoute, nil)
	}
	points := sess.Points()
	results, evalErr := b.planner.EvaluatePoints(ctx, points, days, 0)

	sess.Reset()
	if err := b.store.Save(ctx, sess); err != nil {
		observability.LoggerFrom(ctx, b.logger).Warn("session cleanup failed", zap.Error(err))
	}

	if evalErr != nil {
		observability.LoggerFrom(ctx, b.logger).Warn("route evaluation failed",
			zap.Int("points", len(points)),
			zap.String("step", route.FailedStep(evalErr)),
			zap.Error(evalErr))
		return b.send(chatID, formatFailure(evalErr, len(points)), menuKeyboard())
	}
	return b.send(chatID, formatRoute(results, days, b.lang), menuKeyboard())
}

// send posts an HTML message. markup may be nil.
func (b *Bot) send(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return nil
}

// fail reports a generic error to the user and returns cause for logging.
func (b *Bot) fail(chatID int64, cause error) error {
	if err := b.send(chatID, textInternalError, nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func userOf(u *tgbotapi.User, fallback int64) int64 {
	if u == nil {
		return fallback
	}
	return u.ID
}
