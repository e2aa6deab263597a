package chart

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/models"
)

func sampleDays() []conditions.DayReport {
	base := time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC)
	return []conditions.DayReport{
		{Date: base, MaxTempC: 25, MinTempC: 14, RealFeelMaxC: 27, WindKPH: 12, PrecipitationProbability: 10,
			DayHumidity: models.Humidity{Minimum: 40, Maximum: 70, Average: 55}, DayCloudCover: 20},
		{Date: base.AddDate(0, 0, 1), MaxTempC: 19, MinTempC: 11, RealFeelMaxC: 18, WindKPH: 30, PrecipitationProbability: 80,
			DayHumidity: models.Humidity{Minimum: 60, Maximum: 95, Average: 80}, DayCloudCover: 90},
	}
}

func TestParseGraphType(t *testing.T) {
	for _, g := range GraphTypes {
		got, err := ParseGraphType(" " + string(g) + " ")
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	got, err := ParseGraphType("")
	require.NoError(t, err)
	assert.Equal(t, Temperature, got)

	_, err = ParseGraphType("pressure")
	assert.True(t, errors.Is(err, ErrUnknownGraph))
}

func TestRender_EveryGraph(t *testing.T) {
	days := sampleDays()
	for _, g := range GraphTypes {
		t.Run(string(g), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, "Moscow", days, g))
			html := buf.String()
			assert.Contains(t, html, "echarts")
			assert.Contains(t, html, g.Title())
			assert.Contains(t, html, "2024-07-02")
		})
	}
}

func TestRender_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, "Moscow", nil, Temperature))
	assert.ErrorIs(t, Render(&buf, "Moscow", sampleDays(), GraphType("pressure")), ErrUnknownGraph)
}

func TestSeries_TemperatureValues(t *testing.T) {
	s := Temperature.series(sampleDays())
	require.Len(t, s, 4)
	assert.Equal(t, []float64{25, 19}, s[0].values)
	assert.Equal(t, []float64{14, 11}, s[1].values)
}

func TestDates_ZeroDateFallsBack(t *testing.T) {
	assert.Equal(t, []string{"День 1"}, dates([]conditions.DayReport{{}}))
}
