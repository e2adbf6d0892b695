// Package export writes the report collection to spreadsheet and GIS formats.
package export

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
)

// Format names an export file format.
type Format string

const (
	FormatXLSX      Format = "xlsx"
	FormatShapefile Format = "shp"
	FormatGeoJSON   Format = "geojson"
)

// ErrUnknownFormat is returned for unsupported format names or extensions.
var ErrUnknownFormat = eris.New("export: unknown format")

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "shp", "shapefile":
		return FormatShapefile, nil
	case "geojson", "json":
		return FormatGeoJSON, nil
	}
	return "", eris.Wrapf(ErrUnknownFormat, "%q", s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", eris.Wrapf(ErrUnknownFormat, "no extension on %q", path)
	}
	return ParseFormat(ext)
}

// Write exports reports to path in the given format and returns the number
// of reports written. Shapefiles skip reports without usable coordinates.
func Write(path string, format Format, reports []model.Report) (int, error) {
	var (
		n   int
		err error
	)
	switch format {
	case FormatXLSX:
		n, err = len(reports), XLSX(path, reports)
	case FormatShapefile:
		n, err = Shapefile(path, reports)
	case FormatGeoJSON:
		n, err = writeGeoJSONFile(path, reports)
	default:
		return 0, eris.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return 0, err
	}
	zap.L().Info("export: wrote reports",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("count", n),
	)
	return n, nil
}

func writeGeoJSONFile(path string, reports []model.Report) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "export: create geojson file")
	}
	n, err := GeoJSON(f, reports)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrap(cerr, "export: close geojson file")
	}
	return n, err
}

// columns is the tabular layout shared by the XLSX export.
var columns = []string{
	"id", "user_id", "status", "location", "area", "description",
	"water_level_cm", "lat", "lng", "image_url", "created_at",
}

func createdAt(r model.Report) string {
	if r.CreatedAt.IsZero() {
		return ""
	}
	return r.CreatedAt.UTC().Format(time.RFC3339)
}

func usable(c model.Coordinates) bool {
	return c.Valid() && !c.IsZero()
}
