package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/chart"
	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("02.01.2006")
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("15:04")
	},
	"inc": func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/*.html"))

// render executes a page into a buffer first so template errors become a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("template render failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type routeFormValues struct {
	StartCity string
	EndCity   string
	Waypoints string
	Days      int
	DayIndex  int
}

type formPage struct {
	Form       routeFormValues
	Errors     map[string]string
	DayOptions []int
}

func newFormPage(v routeFormValues) formPage {
	return formPage{Form: v, Errors: make(map[string]string), DayOptions: []int{1, 2, 3, 4, 5}}
}

type pointRow struct {
	Role    string
	Label   string
	Verdict string
	Bad     bool
	Day     conditions.DayReport
	Phrase  string
}

type resultsPage struct {
	Points   []pointRow
	Overall  string
	Bad      bool
	Days     int
	DayIndex int
}

func (h *Handler) newResultsPage(results []route.PointVerdict, days, dayIndex int) resultsPage {
	overall := route.Overall(results)
	page := resultsPage{
		Overall:  conditions.Label(overall, h.lang),
		Bad:      overall == conditions.Bad,
		Days:     days,
		DayIndex: dayIndex,
		Points:   make([]pointRow, 0, len(results)),
	}
	for i, pv := range results {
		role := "Промежуточная точка"
		switch i {
		case 0:
			role = "Начало маршрута"
		case len(results) - 1:
			role = "Конец маршрута"
		}
		day := pv.Selected(dayIndex)
		page.Points = append(page.Points, pointRow{
			Role:    role,
			Label:   pv.Point.Label(),
			Verdict: conditions.Label(pv.Verdict, h.lang),
			Bad:     pv.Verdict == conditions.Bad,
			Day:     day,
			Phrase:  h.phrase(day.IconPhrase),
		})
	}
	return page
}

func (h *Handler) phrase(s string) string {
	if h.lang == conditions.LangRU {
		return conditions.TranslatePhrase(s)
	}
	return s
}

type graphLink struct {
	Type  chart.GraphType
	Title string
}

type weatherPage struct {
	City         string
	Days         int
	DayIndex     int
	CurrentTempC float64
	HasCurrent   bool
	CurrentText  string
	Day          conditions.DayReport
	Phrase       string
	Intensity    string
	PrecipType   string
	Verdict      string
	Bad          bool
	Forecast     []conditions.DayReport
	Graphs       []graphLink
}

func (h *Handler) newWeatherPage(q cityQuery, current models.CurrentConditions, reports []conditions.DayReport) weatherPage {
	day := reports[q.DayIndex]
	page := weatherPage{
		City:        q.City,
		Days:        q.Days,
		DayIndex:    q.DayIndex,
		CurrentText: h.phrase(current.WeatherText),
		Day:         day,
		Phrase:      h.phrase(day.IconPhrase),
		Intensity:   h.phrase(day.PrecipitationIntensity),
		PrecipType:  h.phrase(day.PrecipitationType),
		Verdict:     conditions.Label(day.Verdict, h.lang),
		Bad:         day.Verdict == conditions.Bad,
		Forecast:    reports,
	}
	if current.Temperature.Metric != nil {
		page.CurrentTempC = conditions.TemperatureC(*current.Temperature.Metric)
		page.HasCurrent = true
	}
	for _, g := range chart.GraphTypes {
		page.Graphs = append(page.Graphs, graphLink{Type: g, Title: g.Title()})
	}
	return page
}
