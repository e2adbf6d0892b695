package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/floodwatch/internal/model"
)

// FeatureCollection builds a GeoJSON point collection of reports with
// usable coordinates, with the report fields as properties.
func FeatureCollection(reports []model.Report) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(reports))}
	for _, r := range reports {
		if !usable(r.Coordinates) {
			continue
		}
		props := map[string]any{
			"userId":      string(r.UserID),
			"status":      string(r.Status),
			"location":    r.Location,
			"area":        model.MainArea(r.Location),
			"description": r.Description,
			"waterLevel":  r.WaterLevel,
		}
		if r.ImageURL != "" {
			props["imageUrl"] = r.ImageURL
		}
		if ts := createdAt(r); ts != "" {
			props["createdAt"] = ts
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         string(r.ID),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{r.Coordinates.Lng, r.Coordinates.Lat}),
			Properties: props,
		})
	}
	return fc
}

// GeoJSON encodes reports as a FeatureCollection and returns the number of
// features written.
func GeoJSON(w io.Writer, reports []model.Report) (int, error) {
	fc := FeatureCollection(reports)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return 0, eris.Wrap(err, "geojson: encode")
	}
	return len(fc.Features), nil
}
