package export

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
)

// DBF field names are limited to 10 characters.
const (
	fieldID       = "ID"
	fieldUser     = "USER_ID"
	fieldStatus   = "STATUS"
	fieldLocation = "LOCATION"
	fieldArea     = "AREA"
	fieldDesc     = "DESCR"
	fieldWater    = "WATER_CM"
	fieldImage    = "IMAGE_URL"
	fieldCreated  = "CREATED"
)

const maxDBFString = 254

var shapeFields = []shp.Field{
	shp.StringField(fieldID, 40),
	shp.StringField(fieldUser, 40),
	shp.StringField(fieldStatus, 10),
	shp.StringField(fieldLocation, maxDBFString),
	shp.StringField(fieldArea, 80),
	shp.StringField(fieldDesc, maxDBFString),
	shp.FloatField(fieldWater, 12, 2),
	shp.StringField(fieldImage, maxDBFString),
	shp.StringField(fieldCreated, 25),
}

// Shapefile writes a point shapefile (plus .shx/.dbf siblings) with one
// point per report. Reports without usable coordinates are skipped. A
// missing .shp extension is appended to path.
func Shapefile(path string, reports []model.Report) (int, error) {
	path = withShpExt(path)
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, eris.Wrap(err, "shp: create file")
	}
	defer w.Close()

	if err := w.SetFields(shapeFields); err != nil {
		return 0, eris.Wrap(err, "shp: set fields")
	}

	var written, skipped int
	for _, r := range reports {
		if !usable(r.Coordinates) {
			skipped++
			continue
		}
		row := int(w.Write(&shp.Point{X: r.Coordinates.Lng, Y: r.Coordinates.Lat}))
		values := []any{
			clip(string(r.ID), 40),
			clip(string(r.UserID), 40),
			clip(string(r.Status), 10),
			clip(r.Location, maxDBFString),
			clip(model.MainArea(r.Location), 80),
			clip(r.Description, maxDBFString),
			r.WaterLevel,
			clip(r.ImageURL, maxDBFString),
			createdAt(r),
		}
		for field, v := range values {
			if err := w.WriteAttribute(row, field, v); err != nil {
				return written, eris.Wrapf(err, "shp: write attribute %d of report %s", field, r.ID)
			}
		}
		written++
	}
	if skipped > 0 {
		zap.L().Debug("shp: skipped reports without coordinates", zap.Int("skipped", skipped))
	}
	return written, nil
}

// ShapeRecord is one point read back from a shapefile.
type ShapeRecord struct {
	Coordinates model.Coordinates
	Attributes  map[string]string
}

// ReadShapefile reads the points and attributes of a point shapefile.
func ReadShapefile(path string) ([]ShapeRecord, error) {
	reader, err := shp.Open(withShpExt(path))
	if err != nil {
		return nil, eris.Wrap(err, "shp: open file")
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	var out []ShapeRecord
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			name := strings.TrimRight(f.String(), "\x00")
			attrs[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		out = append(out, ShapeRecord{
			Coordinates: model.Coordinates{Lat: pt.Y, Lng: pt.X},
			Attributes:  attrs,
		})
	}
	return out, nil
}

// go-shp derives the .shx/.dbf names by replacing the last three bytes.
func withShpExt(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return path
	}
	return path + ".shp"
}

// clip truncates s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
