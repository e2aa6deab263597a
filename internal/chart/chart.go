// Package chart renders forecast day reports as interactive HTML charts.
package chart

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/kjstillabower/route-weather-service/internal/conditions"
)

// GraphType selects which measurements are plotted.
type GraphType string

const (
	Temperature   GraphType = "temperature"
	RealFeel      GraphType = "real_feel"
	Humidity      GraphType = "humidity"
	CloudCover    GraphType = "cloud_cover"
	Wind          GraphType = "wind"
	Precipitation GraphType = "precipitation"
)

// ErrUnknownGraph is returned by ParseGraphType for unsupported names.
var ErrUnknownGraph = errors.New("unknown graph type")

// GraphTypes lists every supported graph in menu order.
var GraphTypes = []GraphType{Temperature, RealFeel, Humidity, CloudCover, Wind, Precipitation}

// ParseGraphType maps a query value to a GraphType. Empty means Temperature.
func ParseGraphType(s string) (GraphType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Temperature, nil
	}
	for _, g := range GraphTypes {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGraph, s)
}

// Title returns the Russian caption for g.
func (g GraphType) Title() string {
	switch g {
	case Temperature:
		return "Температура"
	case RealFeel:
		return "Ощущается как"
	case Humidity:
		return "Влажность"
	case CloudCover:
		return "Облачность"
	case Wind:
		return "Скорость ветра"
	case Precipitation:
		return "Вероятность осадков"
	}
	return string(g)
}

type series struct {
	name   string
	values []float64
}

func (g GraphType) unit() string {
	switch g {
	case Temperature, RealFeel:
		return "°C"
	case Wind:
		return "км/ч"
	}
	return "%"
}

func (g GraphType) series(days []conditions.DayReport) []series {
	pick := func(name string, f func(conditions.DayReport) float64) series {
		s := series{name: name, values: make([]float64, len(days))}
		for i, d := range days {
			s.values[i] = f(d)
		}
		return s
	}
	switch g {
	case Temperature:
		return []series{
			pick("Макс. температура", func(d conditions.DayReport) float64 { return d.MaxTempC }),
			pick("Мин. температура", func(d conditions.DayReport) float64 { return d.MinTempC }),
			pick("Днём ощущается как", func(d conditions.DayReport) float64 { return d.RealFeelMaxC }),
			pick("Ночью ощущается как", func(d conditions.DayReport) float64 { return d.RealFeelMinC }),
		}
	case RealFeel:
		return []series{
			pick("Днём ощущается как", func(d conditions.DayReport) float64 { return d.RealFeelMaxC }),
		}
	case Humidity:
		return []series{
			pick("Минимальная влажность днём", func(d conditions.DayReport) float64 { return d.DayHumidity.Minimum }),
			pick("Средняя влажность днём", func(d conditions.DayReport) float64 { return d.DayHumidity.Average }),
			pick("Максимальная влажность днём", func(d conditions.DayReport) float64 { return d.DayHumidity.Maximum }),
			pick("Минимальная влажность ночью", func(d conditions.DayReport) float64 { return d.NightHumidity.Minimum }),
			pick("Средняя влажность ночью", func(d conditions.DayReport) float64 { return d.NightHumidity.Average }),
			pick("Максимальная влажность ночью", func(d conditions.DayReport) float64 { return d.NightHumidity.Maximum }),
		}
	case CloudCover:
		return []series{
			pick("Облачность днём", func(d conditions.DayReport) float64 { return d.DayCloudCover }),
			pick("Облачность ночью", func(d conditions.DayReport) float64 { return d.NightCloudCover }),
		}
	case Wind:
		return []series{
			pick("Скорость ветра", func(d conditions.DayReport) float64 { return d.WindKPH }),
		}
	case Precipitation:
		return []series{
			pick("Вероятность осадков", func(d conditions.DayReport) float64 { return d.PrecipitationProbability }),
		}
	}
	return nil
}

func dates(days []conditions.DayReport) []string {
	out := make([]string, len(days))
	for i, d := range days {
		if d.Date.IsZero() {
			out[i] = fmt.Sprintf("День %d", i+1)
			continue
		}
		out[i] = d.Date.Format("2006-01-02")
	}
	return out
}

func globalOptions(title, subtitle, unit string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Погодный прогноз",
			Theme:     types.ThemeChalk,
			Width:     "960px",
			Height:    "520px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: true, Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Дата"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	}
}

// Render writes a standalone HTML page plotting graph for the given days.
// Precipitation is drawn as bars, everything else as lines.
func Render(w io.Writer, city string, days []conditions.DayReport, graph GraphType) error {
	if len(days) == 0 {
		return errors.New("chart: no forecast days")
	}
	all := graph.series(days)
	if all == nil {
		return fmt.Errorf("%w: %q", ErrUnknownGraph, graph)
	}
	subtitle := fmt.Sprintf("%s, %d дн.", city, len(days))
	x := dates(days)

	if graph == Precipitation {
		bar := charts.NewBar()
		bar.SetGlobalOptions(globalOptions(graph.Title(), subtitle, graph.unit())...)
		bar.SetXAxis(x)
		for _, s := range all {
			data := make([]opts.BarData, len(s.values))
			for i, v := range s.values {
				data[i] = opts.BarData{Value: v}
			}
			bar.AddSeries(s.name, data)
		}
		return bar.Render(w)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOptions(graph.Title(), subtitle, graph.unit())...)
	line.SetXAxis(x)
	for _, s := range all {
		data := make([]opts.LineData, len(s.values))
		for i, v := range s.values {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(s.name, data)
	}
	return line.Render(w)
}
