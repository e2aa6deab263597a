package conditions

import (
	"math"
	"strings"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

const kphPerMPH = 1.609344

func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5.0 / 9.0
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32
}

// TemperatureC returns the measurement in Celsius, converting when the unit is Fahrenheit.
func TemperatureC(m models.Measurement) float64 {
	if strings.EqualFold(m.Unit, "F") {
		return FahrenheitToCelsius(m.Value)
	}
	return m.Value
}

// WindKPH returns the measurement in km/h, converting from mi/h.
func WindKPH(m models.Measurement) float64 {
	switch strings.ToLower(m.Unit) {
	case "mi/h", "mph":
		return m.Value * kphPerMPH
	}
	return m.Value
}

// round2 rounds to two decimals for display.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
