package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/floodwatch/internal/dashboard"
	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// writeStructured renders v as JSON or YAML. ok is false for table output,
// which callers render themselves.
func writeStructured(out io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return true, eris.Wrap(err, "output: encode json")
		}
		return true, nil
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, eris.Wrap(err, "output: encode yaml")
		}
		if err := enc.Close(); err != nil {
			return true, eris.Wrap(err, "output: close yaml encoder")
		}
		return true, nil
	case formatTable, "":
		return false, nil
	default:
		return true, eris.Errorf("output: unknown format %q (want table, json or yaml)", format)
	}
}

// formatReports writes a tabular representation of reports to out.
func formatReports(out io.Writer, reports []model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tWATER\tAREA\tREPORTER\tCREATED\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t----\t--------\t-------\t-----------")

	for _, r := range reports {
		area := model.MainArea(r.Location)
		if area == "" {
			area = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Status,
			waterLevel(r.WaterLevel),
			area,
			orDash(string(r.UserID)),
			createdAt(r.CreatedAt),
			truncate(r.Description, 50),
		)
	}
	_ = w.Flush()
}

// formatReport writes one report as key/value lines.
func formatReport(out io.Writer, r model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Location:\t%s\n", orDash(r.Location))
	_, _ = fmt.Fprintf(w, "Coordinates:\t%.6f, %.6f\n", r.Coordinates.Lat, r.Coordinates.Lng)
	_, _ = fmt.Fprintf(w, "Water level:\t%s\n", waterLevel(r.WaterLevel))
	_, _ = fmt.Fprintf(w, "Description:\t%s\n", orDash(r.Description))
	_, _ = fmt.Fprintf(w, "Reporter:\t%s\n", orDash(string(r.UserID)))
	_, _ = fmt.Fprintf(w, "Image:\t%s\n", orDash(r.ImageURL))
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", createdAt(r.CreatedAt))
	_ = w.Flush()
}

// formatSummary writes the dashboard view.
func formatSummary(out io.Writer, s dashboard.Summary, hotspots []dashboard.Hotspot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Reports:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Resolved:\t%d\n", s.Resolved)
	_, _ = fmt.Fprintf(w, "Users:\t%d\n", s.Reporters)
	_, _ = fmt.Fprintf(w, "My reports:\t%d (%d active)\n", s.Mine, s.MineActive)
	if s.MaxWaterCM > 0 {
		_, _ = fmt.Fprintf(w, "Water level:\tavg %s, max %s\n", waterLevel(s.AvgWaterCM), waterLevel(s.MaxWaterCM))
	}
	if s.Extent != nil {
		_, _ = fmt.Fprintf(w, "Extent:\t%.4f,%.4f .. %.4f,%.4f\n", s.Extent.MinLat, s.Extent.MinLng, s.Extent.MaxLat, s.Extent.MaxLng)
	}
	_ = w.Flush()

	if len(s.TopAreas) > 0 {
		_, _ = fmt.Fprintln(out, "\nTop areas:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, a := range s.TopAreas {
			_, _ = fmt.Fprintf(w, "  %s\t%d\n", a.Area, a.Count)
		}
		_ = w.Flush()
	}

	if len(hotspots) > 0 {
		_, _ = fmt.Fprintln(out, "\nHotspots:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, h := range hotspots {
			_, _ = fmt.Fprintf(w, "  %.4f,%.4f\t%d\t%s\n", h.Center.Lat, h.Center.Lng, h.Count, orDash(h.Area))
		}
		_ = w.Flush()
	}
}

// formatPlaces writes forward-geocoding candidates.
func formatPlaces(out io.Writer, places []geocode.Place) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LAT\tLNG\tNAME")
	for _, p := range places {
		_, _ = fmt.Fprintf(w, "%.6f\t%.6f\t%s\n", p.Coordinates.Lat, p.Coordinates.Lng, truncate(p.DisplayName, 80))
	}
	_ = w.Flush()
}

func waterLevel(cm float64) string {
	if cm <= 0 {
		return "-"
	}
	return fmt.Sprintf("%g cm", cm)
}

func createdAt(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
