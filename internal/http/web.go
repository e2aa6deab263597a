package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/chart"
	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
	"github.com/kjstillabower/route-weather-service/internal/validation"
)

const (
	defaultCity      = "Moscow"
	maxWaypoints     = 8
	formFieldGeneral = "general"
)

// routeRequest is the validated input of both route endpoints.
type routeRequest struct {
	StartCity string   `json:"start_city" validate:"city"`
	EndCity   string   `json:"end_city" validate:"city"`
	Waypoints []string `json:"waypoints" validate:"max=8,dive,city"`
	Days      int      `json:"days" validate:"min=1,max=5"`
	DayIndex  int      `json:"day_index" validate:"min=0,ltfield=Days"`
}

func (rr routeRequest) cityRoute() route.CityRoute {
	wps := make([]string, 0, len(rr.Waypoints))
	for _, w := range rr.Waypoints {
		wps = append(wps, strings.TrimSpace(w))
	}
	return route.CityRoute{
		Start:     strings.TrimSpace(rr.StartCity),
		End:       strings.TrimSpace(rr.EndCity),
		Waypoints: wps,
	}
}

// cityQuery is the validated input of GET /get_weather and GET /dash.
type cityQuery struct {
	City     string `json:"city" validate:"city"`
	Days     int    `json:"days" validate:"min=1,max=5"`
	DayIndex int    `json:"day_index" validate:"min=0,ltfield=Days"`
}

// intParam parses an optional integer. An unparsable value becomes -1 so the
// range check reports it against the right field.
func intParam(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// splitWaypoints accepts one city per line or comma-separated cities.
func splitWaypoints(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Index handles GET /: the route form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index.html", newFormPage(routeFormValues{Days: 1}))
}

// SubmitRoute handles POST /: validates the form, evaluates the route and
// renders the results table, or the form with errors.
func (h *Handler) SubmitRoute(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		page := newFormPage(routeFormValues{Days: 1})
		page.Errors[formFieldGeneral] = "Некорректные данные формы"
		h.render(w, r, http.StatusBadRequest, "index.html", page)
		return
	}
	values := routeFormValues{
		StartCity: r.PostFormValue("start_city"),
		EndCity:   r.PostFormValue("end_city"),
		Waypoints: r.PostFormValue("waypoints"),
		Days:      intParam(r.PostFormValue("days"), 1),
		DayIndex:  intParam(r.PostFormValue("day_index"), 0),
	}
	req := routeRequest{
		StartCity: values.StartCity,
		EndCity:   values.EndCity,
		Waypoints: splitWaypoints(values.Waypoints),
		Days:      values.Days,
		DayIndex:  values.DayIndex,
	}

	if err := validation.Struct(req); err != nil {
		page := newFormPage(values)
		page.Errors[formErrorField(err)] = inputMessage(err)
		h.render(w, r, http.StatusBadRequest, "index.html", page)
		return
	}

	results, err := h.planner.EvaluateCities(r.Context(), req.cityRoute(), req.Days, req.DayIndex)
	h.recordOutcome(err)
	if err != nil {
		e := classify(err)
		observability.LoggerFrom(r.Context(), h.logger).Warn("route evaluation failed", zap.Error(err))
		page := newFormPage(values)
		page.Errors[formFieldGeneral] = e.message
		h.render(w, r, e.status, "index.html", page)
		return
	}
	h.render(w, r, http.StatusOK, "results.html", h.newResultsPage(results, req.Days, req.DayIndex))
}

// formErrorField names the form field a validation error belongs to.
func formErrorField(err error) string {
	var fe *validation.FieldError
	if !errors.As(err, &fe) {
		return formFieldGeneral
	}
	name, _, _ := strings.Cut(fe.Field, "[")
	return name
}

type jsonRouteRequest struct {
	StartCity string   `json:"start_city"`
	EndCity   string   `json:"end_city"`
	Waypoints []string `json:"waypoints"`
	Days      *int     `json:"days"`
	DayIndex  *int     `json:"day_index"`
}

type pointResponse struct {
	Name             string               `json:"name"`
	Coordinates      models.Coordinates   `json:"coordinates"`
	WeatherCondition conditions.Verdict   `json:"weather_condition"`
	Forecast         conditions.DayReport `json:"forecast"`
}

type routeResponse struct {
	StartCity             string             `json:"start_city"`
	StartWeatherCondition conditions.Verdict `json:"start_weather_condition"`
	EndCity               string             `json:"end_city"`
	EndWeatherCondition   conditions.Verdict `json:"end_weather_condition"`
	OverallCondition      conditions.Verdict `json:"overall_condition"`
	Days                  int                `json:"days"`
	DayIndex              int                `json:"day_index"`
	Points                []pointResponse    `json:"points"`
}

// CheckRouteWeather handles POST /check_route_weather.
func (h *Handler) CheckRouteWeather(w http.ResponseWriter, r *http.Request) {
	var body jsonRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidInput, "Некорректный JSON")
		return
	}
	req := routeRequest{
		StartCity: body.StartCity,
		EndCity:   body.EndCity,
		Waypoints: body.Waypoints,
		Days:      1,
	}
	if body.Days != nil {
		req.Days = *body.Days
	}
	if body.DayIndex != nil {
		req.DayIndex = *body.DayIndex
	}
	if err := validation.Struct(req); err != nil {
		writeOperationError(w, r, err)
		return
	}

	cr := req.cityRoute()
	results, err := h.planner.EvaluateCities(r.Context(), cr, req.Days, req.DayIndex)
	h.recordOutcome(err)
	if err != nil {
		writeOperationError(w, r, err)
		return
	}

	resp := routeResponse{
		StartCity:             cr.Start,
		StartWeatherCondition: results[0].Verdict,
		EndCity:               cr.End,
		EndWeatherCondition:   results[len(results)-1].Verdict,
		OverallCondition:      route.Overall(results),
		Days:                  req.Days,
		DayIndex:              req.DayIndex,
		Points:                make([]pointResponse, 0, len(results)),
	}
	for _, pv := range results {
		resp.Points = append(resp.Points, pointResponse{
			Name:             pv.Point.Label(),
			Coordinates:      pv.Point.Coordinates,
			WeatherCondition: pv.Verdict,
			Forecast:         pv.Selected(req.DayIndex),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseCityQuery(r *http.Request) cityQuery {
	q := r.URL.Query()
	city := q.Get("city")
	if strings.TrimSpace(city) == "" {
		city = defaultCity
	}
	return cityQuery{
		City:     strings.TrimSpace(city),
		Days:     intParam(q.Get("days"), 1),
		DayIndex: intParam(q.Get("day_index"), 0),
	}
}

// forecastCity geocodes name and loads its forecast. Failures are returned as
// *route.PointError so they map to the same responses as route evaluation.
func (h *Handler) forecastCity(ctx context.Context, name string, days int) (models.Point, models.ForecastBundle, error) {
	pt := models.Point{Name: name}
	coords, err := h.geocoder.Resolve(ctx, name)
	if err != nil {
		return pt, models.ForecastBundle{}, &route.PointError{Point: pt, Step: route.StepGeocoding, Err: err}
	}
	pt.Coordinates = coords
	bundle, err := h.weather.Forecast(ctx, coords, days)
	if err != nil {
		return pt, models.ForecastBundle{}, &route.PointError{Point: pt, Step: route.StepForecast, Err: err}
	}
	return pt, bundle, nil
}

// GetWeather handles GET /get_weather?city&days&day_index: current temperature
// plus the selected day's details and verdict.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := parseCityQuery(r)
	if err := validation.Struct(q); err != nil {
		writeOperationError(w, r, err)
		return
	}
	page, err := h.loadWeatherPage(r.Context(), q)
	h.recordOutcome(err)
	if err != nil {
		writeOperationError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "weather.html", page)
}

func (h *Handler) loadWeatherPage(ctx context.Context, q cityQuery) (weatherPage, error) {
	pt, bundle, err := h.forecastCity(ctx, q.City, q.Days)
	if err != nil {
		return weatherPage{}, err
	}
	key, err := h.weather.LocationKey(ctx, pt.Coordinates)
	if err != nil {
		return weatherPage{}, &route.PointError{Point: pt, Step: route.StepForecast, Err: err}
	}
	current, err := h.weather.CurrentConditions(ctx, key)
	if err != nil {
		return weatherPage{}, &route.PointError{Point: pt, Step: route.StepForecast, Err: err}
	}
	reports := conditions.SummarizeAll(bundle)
	if q.DayIndex >= len(reports) {
		return weatherPage{}, &route.PointError{Point: pt, Step: route.StepForecast,
			Err: errors.New("forecast shorter than requested day")}
	}
	return h.newWeatherPage(q, current, reports), nil
}

// Dash handles GET /dash?city&days&graph: an interactive chart of the forecast.
func (h *Handler) Dash(w http.ResponseWriter, r *http.Request) {
	q := parseCityQuery(r)
	q.DayIndex = 0
	if err := validation.Struct(q); err != nil {
		writeOperationError(w, r, err)
		return
	}
	graph, err := chart.ParseGraphType(r.URL.Query().Get("graph"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidInput, "Неизвестный тип графика")
		return
	}

	_, bundle, err := h.forecastCity(r.Context(), q.City, q.Days)
	h.recordOutcome(err)
	if err != nil {
		writeOperationError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, q.City, conditions.SummarizeAll(bundle), graph); err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("chart render failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeForecastFailed, "Не удалось построить график")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
