package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback payloads carried by inline buttons.
const (
	cbWeather        = "weather_button"
	cbLocationMap    = "select_location_map"
	cbLocationManual = "enter_location_manual"
	cbAddWaypoint    = "add_intermediate"
	cbSelectForecast = "select_forecast"
	cbIntervalPrefix = "forecast_interval_"
	cbBackToMenu     = "back_to_menu"
	cbCancelRoute    = "cancel_route"
)

// Intervals offered on the forecast keyboard, in days.
var Intervals = []int{1, 3, 5}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Посмотреть прогноз погоды", cbWeather)),
	)
}

func locationInputKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Выбрать на карте", cbLocationMap)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Ввести вручную", cbLocationManual)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Отмена", cbCancelRoute)),
	)
}

func waypointKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Добавить промежуточную точку", cbAddWaypoint)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Перейти к выбору интервала прогноза", cbSelectForecast)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Отмена", cbCancelRoute)),
	)
}

func intervalKeyboard() tgbotapi.InlineKeyboardMarkup {
	labels := map[int]string{1: "Прогноз на сегодня", 3: "Прогноз на 3 дня", 5: "Прогноз на 5 дней"}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(Intervals)+1)
	for _, days := range Intervals {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(labels[days], cbIntervalPrefix+strconv.Itoa(days)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Отмена", cbCancelRoute)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Вернуться в главное меню", cbBackToMenu)),
	)
}

func locationRequestKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("Отправить геолокацию 📍")),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

// parseInterval extracts the day count from a forecast_interval_N payload.
func parseInterval(data string) (int, bool) {
	rest, ok := strings.CutPrefix(data, cbIntervalPrefix)
	if !ok {
		return 0, false
	}
	days, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	for _, d := range Intervals {
		if d == days {
			return days, true
		}
	}
	return 0, false
}
