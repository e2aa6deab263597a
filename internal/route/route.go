// Package route evaluates weather along a multi-point route.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// Steps reported by PointError.
const (
	StepGeocoding = "geocoding"
	StepForecast  = "forecast"
)

// Front ends, used as the metrics label.
const (
	FrontendWeb = "web"
	FrontendBot = "bot"
	FrontendCLI = "cli"
)

// Resolver turns a place name into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, place string) (models.Coordinates, error)
}

// Forecaster returns a daily forecast for coordinates.
type Forecaster interface {
	Forecast(ctx context.Context, coords models.Coordinates, days int) (models.ForecastBundle, error)
}

// CityRoute is a route given by place names.
type CityRoute struct {
	Start     string   `json:"start_city"`
	End       string   `json:"end_city"`
	Waypoints []string `json:"waypoints,omitempty"`
}

// Names returns the points in evaluation order: start, waypoints, end.
func (r CityRoute) Names() []string {
	names := make([]string, 0, len(r.Waypoints)+2)
	names = append(names, r.Start)
	names = append(names, r.Waypoints...)
	return append(names, r.End)
}

// PointVerdict is the evaluated forecast for one point.
type PointVerdict struct {
	Point   models.Point           `json:"point"`
	Days    []conditions.DayReport `json:"days"`
	Verdict conditions.Verdict     `json:"verdict"`
}

// Selected returns the day report the verdict was taken from.
func (p PointVerdict) Selected(dayIndex int) conditions.DayReport {
	if dayIndex < 0 || dayIndex >= len(p.Days) {
		return conditions.DayReport{}
	}
	return p.Days[dayIndex]
}

// PointError names the point and step that aborted an evaluation.
type PointError struct {
	Point models.Point
	Index int
	Step  string
	Err   error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("%s failed for point %d (%s): %v", e.Step, e.Index+1, e.Point.Label(), e.Err)
}

func (e *PointError) Unwrap() error { return e.Err }

// Planner evaluates routes point by point.
type Planner struct {
	resolver   Resolver
	forecaster Forecaster
	frontend   string
}

// NewPlanner creates a planner. frontend labels metrics and defaults to "web".
func NewPlanner(resolver Resolver, forecaster Forecaster, frontend string) *Planner {
	if frontend == "" {
		frontend = FrontendWeb
	}
	return &Planner{resolver: resolver, forecaster: forecaster, frontend: frontend}
}

// WithFrontend returns a copy of p that labels metrics with frontend.
func (p *Planner) WithFrontend(frontend string) *Planner {
	cp := *p
	cp.frontend = frontend
	return &cp
}

// EvaluateCities geocodes each name then evaluates it. The first failure aborts
// and no partial result is returned.
func (p *Planner) EvaluateCities(ctx context.Context, r CityRoute, days, dayIndex int) ([]PointVerdict, error) {
	if err := checkWindow(days, dayIndex); err != nil {
		p.record("invalid")
		return nil, err
	}
	names := r.Names()
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			p.record("invalid")
			return nil, fmt.Errorf("%w: route points must not be empty", client.ErrInvalidInput)
		}
	}

	logger := observability.LoggerFrom(ctx, nil)
	points := make([]models.Point, 0, len(names))
	for i, name := range names {
		coords, err := p.resolver.Resolve(ctx, name)
		if err != nil {
			p.record(StepGeocoding)
			logger.Warn("route point geocoding failed", zap.Int("index", i), zap.String("place", name), zap.Error(err))
			return nil, &PointError{Point: models.Point{Name: name}, Index: i, Step: StepGeocoding, Err: err}
		}
		points = append(points, models.Point{Name: strings.TrimSpace(name), Coordinates: coords})
	}
	return p.evaluate(ctx, points, days, dayIndex)
}

// EvaluatePoints evaluates already-resolved points in the given order.
func (p *Planner) EvaluatePoints(ctx context.Context, points []models.Point, days, dayIndex int) ([]PointVerdict, error) {
	if err := checkWindow(days, dayIndex); err != nil {
		p.record("invalid")
		return nil, err
	}
	if len(points) == 0 {
		p.record("invalid")
		return nil, fmt.Errorf("%w: route has no points", client.ErrInvalidInput)
	}
	return p.evaluate(ctx, points, days, dayIndex)
}

func (p *Planner) evaluate(ctx context.Context, points []models.Point, days, dayIndex int) ([]PointVerdict, error) {
	logger := observability.LoggerFrom(ctx, nil)
	start := time.Now()

	out := make([]PointVerdict, 0, len(points))
	for i, pt := range points {
		bundle, err := p.forecaster.Forecast(ctx, pt.Coordinates, days)
		if err != nil {
			p.record(StepForecast)
			logger.Warn("route point forecast failed", zap.Int("index", i), zap.String("point", pt.Label()), zap.Error(err))
			return nil, &PointError{Point: pt, Index: i, Step: StepForecast, Err: err}
		}
		reports := conditions.SummarizeAll(bundle)
		if dayIndex >= len(reports) {
			p.record(StepForecast)
			err := fmt.Errorf("%w: forecast has %d days, need day %d", client.ErrMissingField, len(reports), dayIndex+1)
			return nil, &PointError{Point: pt, Index: i, Step: StepForecast, Err: err}
		}
		out = append(out, PointVerdict{Point: pt, Days: reports, Verdict: reports[dayIndex].Verdict})
	}

	for _, v := range out {
		observability.VerdictsTotal.WithLabelValues(string(v.Verdict)).Inc()
	}
	p.record("success")
	logger.Info("route evaluated",
		zap.Int("points", len(out)),
		zap.Int("days", days),
		zap.Int("dayIndex", dayIndex),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// PrefetchCity resolves city and loads its forecast so later requests hit the cache.
func (p *Planner) PrefetchCity(ctx context.Context, city string, days int) error {
	coords, err := p.resolver.Resolve(ctx, city)
	if err != nil {
		return fmt.Errorf("prefetch %s: %w", city, err)
	}
	if _, err := p.forecaster.Forecast(ctx, coords, days); err != nil {
		return fmt.Errorf("prefetch %s: %w", city, err)
	}
	return nil
}

func (p *Planner) record(outcome string) {
	observability.RouteEvaluationsTotal.WithLabelValues(p.frontend, outcome).Inc()
}

func checkWindow(days, dayIndex int) error {
	if days < 1 || days > client.MaxForecastDays {
		return fmt.Errorf("%w: days must be between 1 and %d, got %d", client.ErrInvalidInput, client.MaxForecastDays, days)
	}
	if dayIndex < 0 || dayIndex >= days {
		return fmt.Errorf("%w: day index %d outside 0..%d", client.ErrInvalidInput, dayIndex, days-1)
	}
	return nil
}

// FailedStep returns the step of a *PointError in err's chain, or "".
func FailedStep(err error) string {
	var pe *PointError
	if errors.As(err, &pe) {
		return pe.Step
	}
	return ""
}

// Overall returns Bad when any point is bad.
func Overall(results []PointVerdict) conditions.Verdict {
	vs := make([]conditions.Verdict, 0, len(results))
	for _, r := range results {
		vs = append(vs, r.Verdict)
	}
	return conditions.Worst(vs...)
}
