package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/dialogue"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	acked    []string
	updates  chan tgbotapi.Update
	stopped  bool
	sendErr  error
	received tgbotapi.UpdateConfig
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acked = append(f.acked, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.received = config
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no message sent")
	return f.sent[len(f.sent)-1]
}

// fakeForecaster returns one sunny day per requested day, failing for listed latitudes.
type fakeForecaster struct {
	maxTemp float64
	fail    map[float64]error
	calls   []models.Coordinates
}

func (f *fakeForecaster) Forecast(ctx context.Context, coords models.Coordinates, days int) (models.ForecastBundle, error) {
	f.calls = append(f.calls, coords)
	if err := f.fail[coords.Latitude]; err != nil {
		return models.ForecastBundle{}, err
	}
	var b models.ForecastBundle
	date := time.Date(2024, 7, 2, 7, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		d := models.DailyForecast{
			Date: date.AddDate(0, 0, i),
			Temperature: models.TemperatureRange{
				Minimum: &models.Measurement{Value: f.maxTemp - 8, Unit: "C"},
				Maximum: &models.Measurement{Value: f.maxTemp, Unit: "C"},
			},
		}
		d.Day.IconPhrase = "Sunny"
		b.DailyForecasts = append(b.DailyForecasts, d)
	}
	return b, nil
}

type testEnv struct {
	api        *fakeAPI
	forecaster *fakeForecaster
	store      *dialogue.CacheStore
	bot        *Bot
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := newFakeAPI()
	f := &fakeForecaster{maxTemp: 22, fail: map[float64]error{}}
	store := dialogue.NewCacheStore(cache.NewInMemoryCache(), time.Minute)
	planner := route.NewPlanner(nil, f, route.FrontendBot)
	b := New(api, planner, store, zap.NewNop(), Options{Delay: -1})
	return &testEnv{api: api, forecaster: f, store: store, bot: b}
}

func (e *testEnv) state(t *testing.T, user int64) dialogue.State {
	t.Helper()
	sess, err := e.store.Load(context.Background(), user)
	require.NoError(t, err)
	return sess.State
}

const user int64 = 42

func command(cmd string) tgbotapi.Update {
	text := "/" + cmd
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: user},
		Chat:     &tgbotapi.Chat{ID: user},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func location(lat, lon float64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: user},
		Chat:     &tgbotapi.Chat{ID: user},
		Location: &tgbotapi.Location{Latitude: lat, Longitude: lon},
	}}
}

func text(s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: user},
		Chat: &tgbotapi.Chat{ID: user},
		Text: s,
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: user},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: user}},
		Data:    data,
	}}
}

func TestBot_StartAndHelp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, command("start"))
	msg := env.api.last(t)
	assert.Equal(t, textStart, msg.Text)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Equal(t, user, msg.ChatID)

	env.bot.Handle(ctx, command("help"))
	assert.Contains(t, env.api.last(t).Text, "/weather")

	env.bot.Handle(ctx, command("nope"))
	assert.Equal(t, textUnknownCommand, env.api.last(t).Text)
}

func TestBot_FullRoute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, command("weather"))
	assert.Equal(t, textAskStart, env.api.last(t).Text)
	assert.Equal(t, dialogue.StateInputStartPoint, env.state(t, user))

	env.bot.Handle(ctx, location(55.75, 37.62))
	assert.Equal(t, textAskEnd, env.api.last(t).Text)
	assert.Equal(t, dialogue.StateInputEndPoint, env.state(t, user))

	env.bot.Handle(ctx, text("59.93, 30.33"))
	assert.Equal(t, textWaypointOrGo, env.api.last(t).Text)
	assert.Equal(t, dialogue.StateInputIntermediatePoints, env.state(t, user))

	env.bot.Handle(ctx, callback(cbAddWaypoint))
	env.bot.Handle(ctx, location(56.86, 35.9))
	assert.Equal(t, textWaypointAdded, env.api.last(t).Text)

	env.bot.Handle(ctx, callback(cbSelectForecast))
	assert.Equal(t, textAskInterval, env.api.last(t).Text)
	assert.Equal(t, dialogue.StateSelectForecastInterval, env.state(t, user))

	env.bot.Handle(ctx, callback(cbIntervalPrefix+"3"))
	result := env.api.last(t).Text
	assert.Contains(t, result, "Прогноз погоды на 3 дня")
	assert.Contains(t, result, "Начальная точка:</b> 55.75,37.62")
	assert.Contains(t, result, "Промежуточная точка 1:</b> 56.86,35.9")
	assert.Contains(t, result, "Конечная точка:</b> 59.93,30.33")
	assert.Contains(t, result, "Солнечно")
	assert.Contains(t, result, "Итог:</b> благоприятные")

	require.Len(t, env.forecaster.calls, 3)
	assert.Equal(t, 55.75, env.forecaster.calls[0].Latitude)
	assert.Equal(t, 56.86, env.forecaster.calls[1].Latitude)
	assert.Equal(t, 59.93, env.forecaster.calls[2].Latitude)

	assert.Equal(t, dialogue.StateNone, env.state(t, user))
	assert.Contains(t, env.api.acked, "cb-"+cbSelectForecast)
}

func TestBot_ManualStartEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, command("weather"))
	env.bot.Handle(ctx, callback(cbLocationManual))
	assert.Equal(t, textAskManualStart, env.api.last(t).Text)
	assert.Equal(t, dialogue.StateManualInputStartPoint, env.state(t, user))

	env.bot.Handle(ctx, text("55.75, 37.62"))
	assert.Equal(t, dialogue.StateInputEndPoint, env.state(t, user))
}

func TestBot_BadCoordinatesKeepState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, command("weather"))
	for _, in := range []string{"hello", "55.75", "1,2,3", "95, 10", "10, 200"} {
		env.bot.Handle(ctx, text(in))
		assert.Equal(t, textBadCoordinates, env.api.last(t).Text, "input %q", in)
		assert.Equal(t, dialogue.StateInputStartPoint, env.state(t, user), "input %q", in)
	}
}

func TestBot_InputWithoutRoute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, text("55.75, 37.62"))
	assert.Equal(t, textNoRoute, env.api.last(t).Text)

	env.bot.Handle(ctx, callback(cbSelectForecast))
	assert.Equal(t, textNoRoute, env.api.last(t).Text)

	env.bot.Handle(ctx, callback(cbIntervalPrefix+"1"))
	assert.Equal(t, textNoRoute, env.api.last(t).Text)
	assert.Empty(t, env.forecaster.calls)
}

func TestBot_ForecastFailureNamesPointAndClears(t *testing.T) {
	env := newTestEnv(t)
	env.forecaster.fail[59.93] = client.ErrUpstreamFailure
	ctx := context.Background()

	env.bot.Handle(ctx, command("weather"))
	env.bot.Handle(ctx, location(55.75, 37.62))
	env.bot.Handle(ctx, location(59.93, 30.33))
	env.bot.Handle(ctx, callback(cbSelectForecast))
	env.bot.Handle(ctx, callback(cbIntervalPrefix+"1"))

	msg := env.api.last(t)
	assert.Contains(t, msg.Text, "прогноз для точки «59.93,30.33»")
	assert.Contains(t, msg.Text, "конечная точка")
	assert.Equal(t, menuKeyboard(), msg.ReplyMarkup)
	assert.Equal(t, dialogue.StateNone, env.state(t, user))
}

func TestBot_CancelClearsSession(t *testing.T) {
	for _, data := range []string{cbCancelRoute, cbBackToMenu} {
		t.Run(data, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			env.bot.Handle(ctx, command("weather"))
			env.bot.Handle(ctx, location(55.75, 37.62))
			env.bot.Handle(ctx, callback(data))

			assert.Equal(t, dialogue.StateNone, env.state(t, user))
			assert.Equal(t, startKeyboard(), env.api.last(t).ReplyMarkup)
		})
	}
}

func TestBot_WeatherButtonRestartsRoute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bot.Handle(ctx, command("weather"))
	env.bot.Handle(ctx, location(55.75, 37.62))
	env.bot.Handle(ctx, callback(cbWeather))

	sess, err := env.store.Load(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateInputStartPoint, sess.State)
	assert.Nil(t, sess.Start)
}

func TestBot_SendFailureIsReturned(t *testing.T) {
	env := newTestEnv(t)
	env.api.sendErr = errors.New("telegram down")
	err := env.bot.handleCommand(context.Background(), command("help").Message)
	assert.EqualError(t, err, "telegram down")
}

func TestBot_RunDelaysEachUpdate(t *testing.T) {
	api := newFakeAPI()
	store := dialogue.NewCacheStore(cache.NewInMemoryCache(), time.Minute)
	b := New(api, route.NewPlanner(nil, &fakeForecaster{}, route.FrontendBot), store, zap.NewNop(),
		Options{Delay: 30 * time.Millisecond, PollTimeout: 5})

	api.updates <- command("start")
	api.updates <- command("help")
	close(api.updates)

	start := time.Now()
	require.NoError(t, b.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Len(t, api.sent, 2)
	assert.True(t, api.stopped)
	assert.Equal(t, 5, api.received.Timeout)
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	store := dialogue.NewCacheStore(cache.NewInMemoryCache(), time.Minute)
	b := New(api, route.NewPlanner(nil, &fakeForecaster{}, route.FrontendBot), store, zap.NewNop(),
		Options{Delay: time.Hour})

	api.updates <- command("start")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, api.sent)
}

func TestNew_Defaults(t *testing.T) {
	b := New(newFakeAPI(), nil, nil, nil, Options{})
	assert.Equal(t, DefaultDelay, b.delay)
	assert.Equal(t, "ru", b.lang)
	assert.NotNil(t, b.logger)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		data string
		want int
		ok   bool
	}{
		{"forecast_interval_1", 1, true},
		{"forecast_interval_3", 3, true},
		{"forecast_interval_5", 5, true},
		{"forecast_interval_2", 0, false},
		{"forecast_interval_", 0, false},
		{"forecast_interval_x", 0, false},
		{"select_forecast", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseInterval(tt.data)
		assert.Equal(t, tt.ok, ok, tt.data)
		assert.Equal(t, tt.want, got, tt.data)
	}
}

func TestDaysWord(t *testing.T) {
	assert.Equal(t, "день", daysWord(1))
	assert.Equal(t, "дня", daysWord(3))
	assert.Equal(t, "дней", daysWord(5))
	assert.Equal(t, "дней", daysWord(11))
	assert.Equal(t, "день", daysWord(21))
}
