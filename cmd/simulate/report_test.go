package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/models"
	"homedash/internal/services/metrics"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{1234.5, "$1,234.50"},
		{1234.567, "$1,234.57"},
		{1500000, "$1,500,000.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.in))
	}
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "+12.5%", formatChange(12.5))
	assert.Equal(t, "-3.0%", formatChange(-3))
}

func sampleResult() *models.SimulationResult {
	return &models.SimulationResult{
		Mean:                  110000,
		P10:                   90000,
		P50:                   108000,
		P90:                   130000,
		ProbabilityOfLoss:     25.5,
		ProbabilityOfDoubling: 0.2,
		TotalInvested:         100000,
		Config:                models.SimulationConfig{PathCount: 500, HorizonYears: 2},
		FanSeries: []models.FanPoint{
			{MonthIndex: 0, P10: 100000, P50: 100000, P90: 100000},
			{MonthIndex: 24, P10: 90000, P50: 108000, P90: 130000},
		},
		Buckets: []models.BucketDatum{
			{Label: "$80k", Count: 10, Zone: models.ZoneLoss},
			{Label: "$120k", Count: 20, Zone: models.ZoneModerate},
			{Label: "$160k", Count: 0, Zone: models.ZoneGain},
		},
	}
}

func TestWriteReport(t *testing.T) {
	ps := models.NewPositionSet([]models.Position{
		{Ticker: "VTI", Value: 60000, Volatility: 0.18, Drift: 0.07, Account: "ISA"},
		{Ticker: "BND", Value: 40000, Volatility: 0.05, Drift: 0.03, Account: "401k"},
	})
	summary := metrics.New().Summarize(ps, 2)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleResult(), summary, true))
	out := buf.String()

	// a buffer is not a terminal, so nothing is colored
	assert.NotContains(t, out, "\x1b[")

	assert.Contains(t, out, "Horizon: 2 years, 500 paths, 2 positions")
	assert.Contains(t, out, "$100,000.00")
	assert.Contains(t, out, "$108,000.00")
	assert.Contains(t, out, "+30.0%")
	assert.Contains(t, out, "-10.0%")
	assert.Contains(t, out, "Probability of loss:      25.5%")
	assert.Contains(t, out, "Probability of doubling:  0.2%")
	assert.Contains(t, out, "Fan month 0: P10 $100,000.00")
	assert.Contains(t, out, "Fan month 24: P10 $90,000.00  P50 $108,000.00  P90 $130,000.00")
	assert.Contains(t, out, "ISA")
	assert.Contains(t, out, "401k")
	assert.Contains(t, out, "$120k │"+strings.Repeat("█", histogramWidth)+" 20")
	assert.Contains(t, out, " $80k │"+strings.Repeat("█", histogramWidth/2)+" 10")
	assert.Contains(t, out, "$160k │ 0")
	assert.Contains(t, out, "loss")
	assert.Contains(t, out, "gain")
}

func TestWriteReportStatsTable(t *testing.T) {
	ps := models.NewPositionSet([]models.Position{{Ticker: "VTI", Value: 100000, Volatility: 0.2, Drift: 0.05}})

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleResult(), metrics.New().Summarize(ps, 2), false))

	var p10 string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "P10") && !strings.Contains(line, "Fan") {
			p10 = line
		}
	}
	require.NotEmpty(t, p10)
	assert.Contains(t, p10, "$90,000.00")
	assert.Contains(t, p10, "-10.0%")
	assert.Less(t, strings.Index(p10, "$90,000.00"), strings.Index(p10, "-10.0%"))
}

func TestWriteReportWithoutHistogram(t *testing.T) {
	ps := models.NewPositionSet([]models.Position{{Ticker: "VTI", Value: 100000, Volatility: 0.2, Drift: 0.05}})

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleResult(), metrics.New().Summarize(ps, 2), false))

	assert.NotContains(t, buf.String(), "█")
	assert.NotContains(t, buf.String(), "Account")
}

func TestRenderHistogramEmpty(t *testing.T) {
	s := newReportStyles(&bytes.Buffer{})
	assert.Empty(t, renderHistogram(s, []models.BucketDatum{{Label: "$1k"}}))
}

func TestHistogramBar(t *testing.T) {
	tests := []struct {
		name            string
		count, maxCount int
		want            string
	}{
		{"empty", 0, 10, ""},
		{"full", 10, 10, strings.Repeat("█", 8)},
		{"half", 5, 10, strings.Repeat("█", 4)},
		{"tiny count still visible", 1, 1000, "▏"},
		{"partial cell", 3, 16, "█▌"},
		{"rounds up to a full cell", 127, 128, strings.Repeat("█", 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, histogramBar(tt.count, tt.maxCount, 8))
		})
	}
}
