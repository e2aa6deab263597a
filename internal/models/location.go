package models

import (
	"strconv"
	"time"
)

// Coordinates is a resolved geographic point in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Key returns the "lat,lon" form used both as a provider query and as a cache key suffix.
func (c Coordinates) Key() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// LocationKey is the provider's opaque identifier for a forecast location.
type LocationKey string

// Point is one stop on a route. Name is empty when the point was given as raw coordinates.
type Point struct {
	Name        string      `json:"name,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
}

// Label returns the name when present, otherwise the coordinate pair.
func (p Point) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Coordinates.Key()
}

// CurrentConditions is the first element of the provider's current conditions array.
type CurrentConditions struct {
	LocalObservationDateTime time.Time     `json:"LocalObservationDateTime"`
	WeatherText              string        `json:"WeatherText"`
	HasPrecipitation         bool          `json:"HasPrecipitation"`
	PrecipitationType        string        `json:"PrecipitationType,omitempty"`
	IsDayTime                bool          `json:"IsDayTime"`
	Temperature              UnitedMeasure `json:"Temperature"`
}

// UnitedMeasure carries the same quantity in both unit systems.
type UnitedMeasure struct {
	Metric   *Measurement `json:"Metric,omitempty"`
	Imperial *Measurement `json:"Imperial,omitempty"`
}

// Validate applies the missing-field rule for current conditions.
func (c CurrentConditions) Validate() error {
	if c.Temperature.Metric == nil {
		return &MissingFieldError{Field: "Temperature.Metric"}
	}
	return nil
}
