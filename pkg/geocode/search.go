package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
)

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search resolves free text to candidate places. An empty result is not an
// error; callers decide what "not found" means.
func (g *geocoder) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := searchKey(query)
	if places, ok := cacheGet[[]Place](ctx, g.cache, key); ok {
		return *places, nil
	}

	params := url.Values{
		"format": {"json"},
		"q":      {query},
	}

	var raw []searchResult
	if err := g.getJSON(ctx, "/search", params, &raw); err != nil {
		return nil, eris.Wrap(err, "geocode: search")
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lng, lngErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lngErr != nil {
			zap.L().Debug("geocode: skipping unparsable candidate",
				zap.String("lat", r.Lat),
				zap.String("lon", r.Lon),
			)
			continue
		}
		places = append(places, Place{
			Coordinates: model.Coordinates{Lat: lat, Lng: lng},
			DisplayName: r.DisplayName,
		})
	}

	cacheSet(ctx, g.cache, key, places, g.cacheTTL)
	return places, nil
}
