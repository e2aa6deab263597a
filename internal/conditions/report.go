package conditions

import (
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

// DayReport is a per-day summary in Celsius and km/h shared by every front end.
type DayReport struct {
	Date                     time.Time       `json:"date"`
	MaxTempC                 float64         `json:"max_temp_c"`
	MinTempC                 float64         `json:"min_temp_c"`
	RealFeelMaxC             float64         `json:"real_feel_max_c"`
	RealFeelMinC             float64         `json:"real_feel_min_c"`
	WindKPH                  float64         `json:"wind_kph"`
	NightWindKPH             float64         `json:"night_wind_kph"`
	PrecipitationProbability float64         `json:"precipitation_probability"`
	PrecipitationType        string          `json:"precipitation_type,omitempty"`
	PrecipitationIntensity   string          `json:"precipitation_intensity,omitempty"`
	IconPhrase               string          `json:"icon_phrase,omitempty"`
	NightIconPhrase          string          `json:"night_icon_phrase,omitempty"`
	DayHumidity              models.Humidity `json:"day_humidity"`
	NightHumidity            models.Humidity `json:"night_humidity"`
	DayCloudCover            float64         `json:"day_cloud_cover"`
	NightCloudCover          float64         `json:"night_cloud_cover"`
	Sunrise                  time.Time       `json:"sunrise"`
	Sunset                   time.Time       `json:"sunset"`
	Verdict                  Verdict         `json:"verdict"`
}

// Summarize converts one validated daily record and classifies it from the day half.
func Summarize(d models.DailyForecast) DayReport {
	r := DayReport{
		Date:                     d.Date,
		WindKPH:                  round2(WindKPH(d.Day.Wind.Speed)),
		NightWindKPH:             round2(WindKPH(d.Night.Wind.Speed)),
		PrecipitationProbability: d.Day.PrecipitationProbability,
		PrecipitationType:        d.Day.PrecipitationType,
		PrecipitationIntensity:   d.Day.PrecipitationIntensity,
		IconPhrase:               d.Day.IconPhrase,
		NightIconPhrase:          d.Night.IconPhrase,
		DayHumidity:              d.Day.RelativeHumidity,
		NightHumidity:            d.Night.RelativeHumidity,
		DayCloudCover:            d.Day.CloudCover,
		NightCloudCover:          d.Night.CloudCover,
		Sunrise:                  d.Sun.Rise,
		Sunset:                   d.Sun.Set,
	}
	if d.Temperature.Maximum != nil {
		r.MaxTempC = round2(TemperatureC(*d.Temperature.Maximum))
	}
	if d.Temperature.Minimum != nil {
		r.MinTempC = round2(TemperatureC(*d.Temperature.Minimum))
	}
	if d.RealFeelTemperature.Maximum != nil {
		r.RealFeelMaxC = round2(TemperatureC(*d.RealFeelTemperature.Maximum))
	}
	if d.RealFeelTemperature.Minimum != nil {
		r.RealFeelMinC = round2(TemperatureC(*d.RealFeelTemperature.Minimum))
	}
	r.Verdict = Classify(r.MaxTempC, r.WindKPH, r.PrecipitationProbability, r.PrecipitationIntensity)
	return r
}

// SummarizeAll summarizes every day of a bundle in order.
func SummarizeAll(b models.ForecastBundle) []DayReport {
	out := make([]DayReport, 0, len(b.DailyForecasts))
	for _, d := range b.DailyForecasts {
		out = append(out, Summarize(d))
	}
	return out
}
