package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"stock-price-alerts/internal/enrichment"
	"stock-price-alerts/internal/storage"
)

// ShowWatchlist prints the tracked instruments as a table.
func (a *App) ShowWatchlist(ctx context.Context, out io.Writer) error {
	items, err := a.watch.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tUPPER\tLOWER\tOWNER\tADDED")
	for _, inst := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Code,
			inst.Name,
			inst.UpperThreshold.StringFixed(2),
			inst.LowerThreshold.StringFixed(2),
			inst.OwnerEmail,
			inst.AddedAt.UTC().Format("2006-01-02"),
		)
	}
	return w.Flush()
}

// ShowRecentAlerts prints the newest alert events as a table.
func (a *App) ShowRecentAlerts(ctx context.Context, out io.Writer, limit int) error {
	if limit <= 0 {
		limit = 20
	}

	events, err := a.sink.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tDIR\tPRICE\tTHRESHOLD\tTRIGGERED\tANALYSIS")
	for _, event := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			event.ID,
			event.Code,
			event.Direction,
			event.TriggeredPrice.StringFixed(2),
			event.ThresholdPrice.StringFixed(2),
			event.TriggeredAt.UTC().Format(time.RFC3339),
			summariseEnrichment(event),
		)
	}
	return w.Flush()
}

// summariseEnrichment condenses the stored analysis blob for table output.
func summariseEnrichment(event storage.AlertEvent) string {
	if len(event.Enrichment) == 0 {
		return "-"
	}
	var res enrichment.Result
	if err := json.Unmarshal(event.Enrichment, &res); err != nil {
		return "-"
	}
	if res.Failed {
		return "failed"
	}
	return fmt.Sprintf("%d/100 %s", res.Score, res.Recommendation)
}
