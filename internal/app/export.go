package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"stock-price-alerts/internal/storage"
)

// MaxPoints resolves a CLI override against the configured export default.
func (a *App) MaxPoints(override int) int {
	return a.cfg.ResolveMaxPoints(override)
}

// ExportCSV writes alert events matching the filter as CSV rows.
func (a *App) ExportCSV(ctx context.Context, out io.Writer, filter storage.AlertFilter) error {
	events, err := a.sink.ListAlerts(ctx, filter)
	if err != nil {
		return err
	}

	w := csv.NewWriter(out)
	header := []string{"id", "code", "name", "direction", "triggered_price", "threshold_price", "triggered_at", "owner_email"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, event := range events {
		row := []string{
			fmt.Sprintf("%d", event.ID),
			event.Code,
			event.Name,
			event.Direction,
			event.TriggeredPrice.String(),
			event.ThresholdPrice.String(),
			event.TriggeredAt.UTC().Format(time.RFC3339),
			event.OwnerEmail,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// ExportChart renders the triggered prices of one instrument's alert history
// as a PNG time series.
func (a *App) ExportChart(ctx context.Context, path, code string, maxPoints int) error {
	maxPoints = a.cfg.ResolveMaxPoints(maxPoints)

	events, err := a.sink.ListAlerts(ctx, storage.AlertFilter{Code: code, Limit: maxPoints})
	if err != nil {
		return err
	}
	if len(events) < 2 {
		return fmt.Errorf("标的 %s 的告警数据不足，无法绘图 (%d 条)", code, len(events))
	}

	// ListAlerts is newest-first; the chart wants chronological order.
	times := make([]time.Time, 0, len(events))
	prices := make([]float64, 0, len(events))
	thresholds := make([]float64, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		times = append(times, event.TriggeredAt)
		price, _ := event.TriggeredPrice.Float64()
		prices = append(prices, price)
		threshold, _ := event.ThresholdPrice.Float64()
		thresholds = append(thresholds, threshold)
	}

	times, prices, thresholds = downsample(times, prices, thresholds, maxPoints)

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s alert prices", code),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02 15:04"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "triggered price",
				XValues: times,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "threshold",
				XValues: times,
				YValues: thresholds,
				Style: chart.Style{
					StrokeColor:     chart.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	a.logger.Info().Str("path", path).Int("points", len(times)).Msg("图表已导出")
	return nil
}

// downsample thins a series to at most max points by stride sampling,
// always keeping the final point.
func downsample(times []time.Time, prices, thresholds []float64, max int) ([]time.Time, []float64, []float64) {
	if max <= 0 || len(times) <= max {
		return times, prices, thresholds
	}

	stride := (len(times) + max - 1) / max
	outTimes := make([]time.Time, 0, max)
	outPrices := make([]float64, 0, max)
	outThresholds := make([]float64, 0, max)
	for i := 0; i < len(times); i += stride {
		outTimes = append(outTimes, times[i])
		outPrices = append(outPrices, prices[i])
		outThresholds = append(outThresholds, thresholds[i])
	}

	last := len(times) - 1
	if !outTimes[len(outTimes)-1].Equal(times[last]) {
		outTimes = append(outTimes, times[last])
		outPrices = append(outPrices, prices[last])
		outThresholds = append(outThresholds, thresholds[last])
	}
	return outTimes, outPrices, outThresholds
}
