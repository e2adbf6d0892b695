package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
)

// Address holds the administrative subdivisions of a reverse-geocoded point.
type Address struct {
	Road         string `json:"road,omitempty"`
	Suburb       string `json:"suburb,omitempty"`
	District     string `json:"district,omitempty"`
	CityDistrict string `json:"city_district,omitempty"`
	City         string `json:"city,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	State        string `json:"state,omitempty"`
	Postcode     string `json:"postcode,omitempty"`
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

// Area composes the most specific available subdivisions (sub-district, then
// city or municipality, then state) into a display string joined by ", ".
func (a Address) Area() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{
		firstNonEmpty(a.Suburb, a.District, a.CityDistrict),
		firstNonEmpty(a.City, a.Municipality),
		a.State,
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type reverseResponse struct {
	Address     Address `json:"address"`
	DisplayName string  `json:"display_name"`
	Error       string  `json:"error"`
}

// Reverse resolves coordinates to an address. A point the service cannot
// place returns ErrNotFound.
func (g *geocoder) Reverse(ctx context.Context, c model.Coordinates) (*Address, error) {
	if !c.Valid() {
		return nil, eris.Errorf("geocode: invalid coordinates %f,%f", c.Lat, c.Lng)
	}

	key := reverseKey(c, g.cellLevel)
	if addr, ok := cacheGet[Address](ctx, g.cache, key); ok {
		return addr, nil
	}

	params := url.Values{
		"format": {"json"},
		"lat":    {strconv.FormatFloat(c.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(c.Lng, 'f', -1, 64)},
	}

	var resp reverseResponse
	if err := g.getJSON(ctx, "/reverse", params, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: reverse")
	}
	if resp.Error != "" {
		return nil, eris.Wrap(ErrNotFound, resp.Error)
	}

	cacheSet(ctx, g.cache, key, resp.Address, g.cacheTTL)
	return &resp.Address, nil
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// decodeCached unmarshals a cached JSON blob.
func decodeCached[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
