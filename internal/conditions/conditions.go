// Package conditions classifies forecast values as good or bad travel weather.
// Classify is pure and works in Celsius and km/h; converting provider units is
// done by the caller through the helpers in this package.
package conditions

import (
	"strings"
)

// Verdict is the canonical classification result. It is localized only when presented.
type Verdict string

const (
	Good Verdict = "good"
	Bad  Verdict = "bad"
)

// Thresholds. A value strictly beyond a bound is bad; the bound itself is good.
const (
	MinTemperatureC         = 0.0
	MaxTemperatureC         = 35.0
	MaxWindKPH              = 50.0
	MaxPrecipitationPercent = 70.0
	intensityHeavy          = "heavy"
	intensityModerate       = "moderate"
)

// Classify returns Bad when any rule fires: temperature below 0 or above 35,
// wind above 50, precipitation probability above 70, or an intensity of
// "heavy"/"moderate" (case-insensitive). An empty intensity counts as absent.
func Classify(maxTempC, windKPH, precipProbability float64, intensity string) Verdict {
	if maxTempC < MinTemperatureC || maxTempC > MaxTemperatureC {
		return Bad
	}
	if windKPH > MaxWindKPH {
		return Bad
	}
	if precipProbability > MaxPrecipitationPercent {
		return Bad
	}
	switch strings.ToLower(strings.TrimSpace(intensity)) {
	case intensityHeavy, intensityModerate:
		return Bad
	}
	return Good
}

// Worst folds verdicts; any Bad makes the result Bad. An empty input is Good.
func Worst(verdicts ...Verdict) Verdict {
	for _, v := range verdicts {
		if v == Bad {
			return Bad
		}
	}
	return Good
}
