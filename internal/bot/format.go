package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

const (
	textStart = "<b>Привет! Я бот прогноза погоды. Используйте команду /weather для запроса прогноза.\n" +
		"Или команду /help для просмотра доступных команд</b>"
	textHelp = "Доступные команды:\n" +
		"/start - Начать общение с ботом\n" +
		"/help - Получить список команд\n" +
		"/weather - Получить прогноз погоды для маршрута"
	textAskStart        = "<b>Укажите начальную точку маршрута:</b>\nВыберите вариант:"
	textAskEnd          = "<b>Теперь укажите конечную точку маршрута:</b>"
	textAskLocation     = "Пожалуйста, отправьте свою геолокацию:"
	textAskManualStart  = "Введите координаты начальной точки в формате: широта, долгота"
	textAskManualEnd    = "Введите координаты конечной точки в формате: широта, долгота"
	textAskManualPoint  = "Введите координаты промежуточной точки в формате: широта, долгота"
	textAskWaypoint     = "Пожалуйста, отправьте геолокацию для промежуточной точки."
	textWaypointOrGo    = "Вы хотите добавить промежуточную точку или перейти к выбору прогноза?"
	textWaypointAdded   = "Промежуточная точка добавлена! Отправьте ещё одну геолокацию для следующей остановки или выберите «Перейти к выбору интервала прогноза»."
	textAskInterval     = "Выберите интервал прогноза:"
	textBadCoordinates  = "Ошибка: координаты должны быть в формате широта, долгота. Попробуйте снова."
	textNoRoute         = "Сначала начните построение маршрута командой /weather."
	textCancelled       = "Маршрут отменён."
	textMenu            = "Главное меню. Используйте /weather для нового маршрута."
	textInternalError   = "Произошла ошибка, попробуйте позже."
	textUnknownCommand  = "Неизвестная команда. Список команд: /help"
	textForecastFailure = "Не удалось получить прогноз погоды."
)

// pointRole names a route position for display.
func pointRole(i, n int) string {
	switch {
	case i == 0:
		return "Начальная точка"
	case i == n-1:
		return "Конечная точка"
	default:
		return fmt.Sprintf("Промежуточная точка %d", i)
	}
}

func daysWord(n int) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return "день"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 10 || n%100 >= 20):
		return "дня"
	default:
		return "дней"
	}
}

// formatRoute renders evaluated points as an HTML message.
func formatRoute(results []route.PointVerdict, days int, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Прогноз погоды на %d %s:</b>\n", days, daysWord(days))
	for i, r := range results {
		fmt.Fprintf(&b, "\n<b>%s:</b> %s\n", pointRole(i, len(results)), html.EscapeString(r.Point.Label()))
		fmt.Fprintf(&b, "Условия: %s\n", conditions.Label(r.Verdict, lang))
		for _, d := range r.Days {
			fmt.Fprintf(&b, "%s: %s, %.1f…%.1f°C, ветер %.1f км/ч, осадки %.0f%%\n",
				d.Date.Format("02.01"),
				html.EscapeString(conditions.TranslatePhrase(d.IconPhrase)),
				d.MinTempC, d.MaxTempC, d.WindKPH, d.PrecipitationProbability)
		}
	}
	fmt.Fprintf(&b, "\n<b>Итог:</b> %s", conditions.Label(route.Overall(results), lang))
	return b.String()
}

// formatFailure names the point and step that stopped the evaluation.
func formatFailure(err error, total int) string {
	var pe *route.PointError
	if !errors.As(err, &pe) {
		return textForecastFailure
	}
	what := "прогноз"
	if pe.Step == route.StepGeocoding {
		what = "координаты"
	}
	return fmt.Sprintf("Не удалось получить %s для точки «%s» (%s).",
		what, html.EscapeString(pe.Point.Label()), strings.ToLower(pointRole(pe.Index, total)))
}
