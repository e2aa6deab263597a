// Package dialogue holds the chat route-entry state machine and its session store.
package dialogue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/validation"
)

// State is the position of a user in the route-entry flow.
type State string

const (
	StateNone                    State = ""
	StateInputStartPoint         State = "input_start_point"
	StateManualInputStartPoint   State = "manual_input_start_point"
	StateInputEndPoint           State = "input_end_point"
	StateInputIntermediatePoints State = "input_intermediate_points"
	StateSelectForecastInterval  State = "select_forecast_interval"
)

func (s State) String() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

var (
	// ErrUnexpectedInput is returned when an event does not apply to the current state.
	ErrUnexpectedInput = errors.New("input not expected in current state")

	// ErrCoordinateFormat is returned when text is not "lat,lon" with two floats.
	ErrCoordinateFormat = errors.New("coordinates must be two comma-separated numbers: latitude, longitude")
)

// Session is one user's progress through the flow.
type Session struct {
	UserID    int64          `json:"user_id"`
	State     State          `json:"state"`
	Start     *models.Point  `json:"start,omitempty"`
	End       *models.Point  `json:"end,omitempty"`
	Waypoints []models.Point `json:"waypoints,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession returns an empty session for userID.
func NewSession(userID int64) *Session {
	return &Session{UserID: userID, State: StateNone}
}

func (s *Session) moveTo(to State) {
	observability.DialogueTransitionsTotal.WithLabelValues(s.State.String(), to.String()).Inc()
	s.State = to
}

// Begin discards any collected points and waits for the start point.
func (s *Session) Begin() {
	s.Start, s.End, s.Waypoints = nil, nil, nil
	s.moveTo(StateInputStartPoint)
}

// RequestManualEntry switches start point entry to typed coordinates.
func (s *Session) RequestManualEntry() error {
	if s.State != StateInputStartPoint && s.State != StateManualInputStartPoint {
		return fmt.Errorf("%w: manual entry in %s", ErrUnexpectedInput, s.State)
	}
	s.moveTo(StateManualInputStartPoint)
	return nil
}

// ReceivePoint stores p according to the current state and advances.
func (s *Session) ReceivePoint(p models.Point) error {
	switch s.State {
	case StateInputStartPoint, StateManualInputStartPoint:
		s.Start = &p
		s.moveTo(StateInputEndPoint)
	case StateInputEndPoint:
		s.End = &p
		s.moveTo(StateInputIntermediatePoints)
	case StateInputIntermediatePoints:
		s.Waypoints = append(s.Waypoints, p)
		s.moveTo(StateInputIntermediatePoints)
	default:
		return fmt.Errorf("%w: point in %s", ErrUnexpectedInput, s.State)
	}
	return nil
}

// ReceiveText parses text as coordinates and stores the point. A parse error
// leaves the session unchanged.
func (s *Session) ReceiveText(text string) error {
	if !s.AcceptsPoint() {
		return fmt.Errorf("%w: text in %s", ErrUnexpectedInput, s.State)
	}
	coords, err := ParseCoordinates(text)
	if err != nil {
		return err
	}
	return s.ReceivePoint(models.Point{Coordinates: coords})
}

// AcceptsPoint reports whether the current state collects a point.
func (s *Session) AcceptsPoint() bool {
	switch s.State {
	case StateInputStartPoint, StateManualInputStartPoint, StateInputEndPoint, StateInputIntermediatePoints:
		return true
	}
	return false
}

// ProceedToForecast moves to interval selection once start and end are set.
func (s *Session) ProceedToForecast() error {
	if s.State != StateInputIntermediatePoints || s.Start == nil || s.End == nil {
		return fmt.Errorf("%w: forecast requested in %s", ErrUnexpectedInput, s.State)
	}
	s.moveTo(StateSelectForecastInterval)
	return nil
}

// Points returns start, waypoints and end in route order.
func (s *Session) Points() []models.Point {
	if s.Start == nil || s.End == nil {
		return nil
	}
	pts := make([]models.Point, 0, len(s.Waypoints)+2)
	pts = append(pts, *s.Start)
	pts = append(pts, s.Waypoints...)
	return append(pts, *s.End)
}

// Reset clears the session.
func (s *Session) Reset() {
	s.Start, s.End, s.Waypoints = nil, nil, nil
	if s.State != StateNone {
		s.moveTo(StateNone)
	}
}

// ParseCoordinates parses "lat,lon". Exactly two comma-separated floats are
// accepted, surrounding whitespace is ignored, and both must be in range.
func ParseCoordinates(text string) (models.Coordinates, error) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 2 {
		return models.Coordinates{}, ErrCoordinateFormat
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Coordinates{}, ErrCoordinateFormat
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Coordinates{}, ErrCoordinateFormat
	}
	coords := models.Coordinates{Latitude: lat, Longitude: lon}
	if err := validation.ValidateCoordinates(coords); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: %w", ErrCoordinateFormat, err)
	}
	return coords, nil
}
