package models

import (
	"fmt"
	"time"
)

// MissingFieldError reports a required provider field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %s", e.Field)
}

// Measurement is a single provider value with its unit ("C", "F", "km/h", "mi/h", ...).
type Measurement struct {
	Value    float64 `json:"Value"`
	Unit     string  `json:"Unit"`
	UnitType int     `json:"UnitType,omitempty"`
}

// TemperatureRange is a daily minimum/maximum pair.
type TemperatureRange struct {
	Minimum *Measurement `json:"Minimum,omitempty"`
	Maximum *Measurement `json:"Maximum,omitempty"`
}

// Sun holds sunrise and sunset for one day.
type Sun struct {
	Rise time.Time `json:"Rise"`
	Set  time.Time `json:"Set"`
}

// Wind is the forecast wind for one half-day.
type Wind struct {
	Speed Measurement `json:"Speed"`
}

// Humidity is relative humidity in percent.
type Humidity struct {
	Minimum float64 `json:"Minimum"`
	Maximum float64 `json:"Maximum"`
	Average float64 `json:"Average"`
}

// HalfDay is the day or night part of a daily forecast.
type HalfDay struct {
	IconPhrase               string   `json:"IconPhrase"`
	HasPrecipitation         bool     `json:"HasPrecipitation"`
	PrecipitationType        string   `json:"PrecipitationType,omitempty"`
	PrecipitationIntensity   string   `json:"PrecipitationIntensity,omitempty"`
	PrecipitationProbability float64  `json:"PrecipitationProbability"`
	Wind                     Wind     `json:"Wind"`
	CloudCover               float64  `json:"CloudCover"`
	RelativeHumidity         Humidity `json:"RelativeHumidity"`
}

// DailyForecast is one day of a forecast bundle.
type DailyForecast struct {
	Date                time.Time        `json:"Date"`
	Sun                 Sun              `json:"Sun"`
	Temperature         TemperatureRange `json:"Temperature"`
	RealFeelTemperature TemperatureRange `json:"RealFeelTemperature"`
	Day                 HalfDay          `json:"Day"`
	Night               HalfDay          `json:"Night"`
}

// ForecastBundle is the typed daily forecast document.
type ForecastBundle struct {
	DailyForecasts []DailyForecast `json:"DailyForecasts"`
}

// Validate applies the missing-field rule: at least one day, and every day
// carries a temperature minimum and maximum. All other fields are optional.
func (b ForecastBundle) Validate() error {
	if len(b.DailyForecasts) == 0 {
		return &MissingFieldError{Field: "DailyForecasts"}
	}
	for i, d := range b.DailyForecasts {
		if d.Temperature.Maximum == nil {
			return &MissingFieldError{Field: fmt.Sprintf("DailyForecasts[%d].Temperature.Maximum", i)}
		}
		if d.Temperature.Minimum == nil {
			return &MissingFieldError{Field: fmt.Sprintf("DailyForecasts[%d].Temperature.Minimum", i)}
		}
	}
	return nil
}

// Truncate returns a copy limited to the first n days.
func (b ForecastBundle) Truncate(n int) ForecastBundle {
	if n < 0 || n >= len(b.DailyForecasts) {
		return b
	}
	out := make([]DailyForecast, n)
	copy(out, b.DailyForecasts[:n])
	return ForecastBundle{DailyForecasts: out}
}
