// Package dashboard aggregates the report collection for the overview
// screen: totals, status split, the caller's own reports, busiest areas,
// the map extent and flood hotspots.
package dashboard

import (
	"context"
	"sort"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodwatch/internal/auth"
	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

// Extent is the bounding box of a set of reports.
type Extent struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MinLng float64 `json:"min_lng" yaml:"min_lng"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MaxLng float64 `json:"max_lng" yaml:"max_lng"`
}

// Center returns the middle of the box.
func (e Extent) Center() model.Coordinates {
	return model.Coordinates{Lat: (e.MinLat + e.MaxLat) / 2, Lng: (e.MinLng + e.MaxLng) / 2}
}

// AreaCount is how many reports fall in one display area.
type AreaCount struct {
	Area  string `json:"area" yaml:"area"`
	Count int    `json:"count" yaml:"count"`
}

// Summary is the dashboard's aggregate view.
type Summary struct {
	Total      int            `json:"total" yaml:"total"`
	Active     int            `json:"active" yaml:"active"`
	Resolved   int            `json:"resolved" yaml:"resolved"`
	Reporters  int            `json:"reporters" yaml:"reporters"`
	Mine       int            `json:"mine" yaml:"mine"`
	MineActive int            `json:"mine_active" yaml:"mine_active"`
	AvgWaterCM float64        `json:"avg_water_level_cm" yaml:"avg_water_level_cm"`
	MaxWaterCM float64        `json:"max_water_level_cm" yaml:"max_water_level_cm"`
	TopAreas   []AreaCount    `json:"top_areas" yaml:"top_areas"`
	Extent     *Extent        `json:"extent,omitempty" yaml:"extent,omitempty"`
	Recent     []model.Report `json:"recent" yaml:"recent"`
}

const (
	topAreaLimit = 5
	recentLimit  = 5
)

// Summarize aggregates reports from the point of view of session.
func Summarize(reports []model.Report, session auth.Session) Summary {
	s := Summary{Total: len(reports)}
	users := make(map[model.ID]struct{})
	var waterSum float64
	var waterN int

	for _, r := range reports {
		switch r.Status {
		case model.StatusActive:
			s.Active++
		case model.StatusResolved:
			s.Resolved++
		}
		if r.UserID != "" {
			users[r.UserID] = struct{}{}
		}
		if session.Owns(r) {
			s.Mine++
			if r.Status == model.StatusActive {
				s.MineActive++
			}
		}
		if r.WaterLevel > 0 {
			waterSum += r.WaterLevel
			waterN++
			if r.WaterLevel > s.MaxWaterCM {
				s.MaxWaterCM = r.WaterLevel
			}
		}
	}
	s.Reporters = len(users)
	if waterN > 0 {
		s.AvgWaterCM = waterSum / float64(waterN)
	}
	s.TopAreas = TopAreas(reports, topAreaLimit)
	s.Extent = BoundingBox(reports)

	n := min(recentLimit, len(reports))
	s.Recent = append([]model.Report(nil), reports[:n]...)
	return s
}

// TopAreas counts reports per display area, busiest first, ties by name.
func TopAreas(reports []model.Report, limit int) []AreaCount {
	counts := make(map[string]int)
	for _, area := range model.MainAreas(reports) {
		counts[area]++
	}
	out := make([]AreaCount, 0, len(counts))
	for area, n := range counts {
		out = append(out, AreaCount{Area: area, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Area < out[j].Area
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// BoundingBox returns the extent of all reports with valid coordinates, or
// nil when there are none.
func BoundingBox(reports []model.Report) *Extent {
	mp := geom.NewMultiPoint(geom.XY).SetSRID(4326)
	for _, r := range reports {
		if !r.Coordinates.Valid() || r.Coordinates.IsZero() {
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{r.Coordinates.Lng, r.Coordinates.Lat})
		if err := mp.Push(pt); err != nil {
			zap.L().Debug("dashboard: skipping point", zap.String("id", string(r.ID)), zap.Error(err))
		}
	}
	if mp.NumPoints() == 0 {
		return nil
	}
	b := mp.Bounds()
	return &Extent{MinLat: b.Min(1), MinLng: b.Min(0), MaxLat: b.Max(1), MaxLng: b.Max(0)}
}

// Hotspot is a cluster of active reports in one S2 cell.
type Hotspot struct {
	Cell   string            `json:"cell" yaml:"cell"`
	Center model.Coordinates `json:"center" yaml:"center"`
	Count  int               `json:"count" yaml:"count"`
	Area   string            `json:"area,omitempty" yaml:"area,omitempty"`
}

// DefaultHotspotLevel groups reports into S2 level-13 cells (~1 km).
const DefaultHotspotLevel = 13

// Hotspots clusters active reports by S2 cell at level and names the
// busiest limit cells by reverse geocoding their centers concurrently. A
// failed lookup leaves Area empty. geo may be nil to skip naming.
func Hotspots(ctx context.Context, geo geocode.Client, reports []model.Report, level, limit int) ([]Hotspot, error) {
	if level <= 0 || level > 30 {
		level = DefaultHotspotLevel
	}
	counts := make(map[s2.CellID]int)
	for _, r := range reports {
		if r.Status != model.StatusActive || !r.Coordinates.Valid() || r.Coordinates.IsZero() {
			continue
		}
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(r.Coordinates.Lat, r.Coordinates.Lng)).Parent(level)
		counts[cell]++
	}

	out := make([]Hotspot, 0, len(counts))
	for cell, n := range counts {
		ll := cell.LatLng()
		out = append(out, Hotspot{
			Cell:   cell.ToToken(),
			Center: model.Coordinates{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()},
			Count:  n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Cell < out[j].Cell
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if geo == nil {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range out {
		g.Go(func() error {
			addr, err := geo.Reverse(gctx, out[i].Center)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("dashboard: hotspot lookup failed", zap.String("cell", out[i].Cell), zap.Error(err))
				return nil
			}
			out[i].Area = addr.Area()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
