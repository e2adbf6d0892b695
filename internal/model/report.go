package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ReportStatus is the lifecycle state of a flood report.
type ReportStatus string

const (
	StatusActive   ReportStatus = "ACTIVE"
	StatusResolved ReportStatus = "RESOLVED"
)

// ErrInvalidStatus is returned when a status string is not a known ReportStatus.
var ErrInvalidStatus = eris.New("model: invalid report status")

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = eris.New("model: status transition not allowed")

// ParseStatus parses s (case-insensitive, surrounding space ignored) into a ReportStatus.
func ParseStatus(s string) (ReportStatus, error) {
	switch ReportStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", eris.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Valid reports whether s is one of the two known statuses.
func (s ReportStatus) Valid() bool {
	return s == StatusActive || s == StatusResolved
}

// CanTransition reports whether a report may move from one status to another.
// ACTIVE -> RESOLVED is the only change; staying put is always allowed.
func CanTransition(from, to ReportStatus) bool {
	if from == to {
		return from.Valid()
	}
	return from == StatusActive && to == StatusResolved
}

// DefaultCoordinates is the fallback map point used when none is known.
var DefaultCoordinates = Coordinates{Lat: -6.2, Lng: 106.816666}

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the pair lies within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// IsZero reports whether the pair is unset.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// OrDefault returns c, or DefaultCoordinates when c is unset or out of range.
func (c Coordinates) OrDefault() Coordinates {
	if c.IsZero() || !c.Valid() {
		return DefaultCoordinates
	}
	return c
}

// UnmarshalJSON accepts either an object or a JSON-encoded string holding one;
// multipart submissions store coordinates as a string.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return eris.Wrap(err, "model: decode coordinates string")
		}
		if strings.TrimSpace(inner) == "" {
			return nil
		}
		data = []byte(inner)
	}
	type plain Coordinates
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: decode coordinates")
	}
	*c = Coordinates(p)
	return nil
}

// ID identifies a report. Backends emit numeric or string ids; both decode to
// the same textual form so ids compare with ==.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode id")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "model: decode id")
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits integral ids as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Report is the client's cached copy of a server-owned flood report.
type Report struct {
	ID          ID           `json:"id" yaml:"id"`
	UserID      ID           `json:"userId" yaml:"user_id"`
	Description string       `json:"description" yaml:"description"`
	Location    string       `json:"location" yaml:"location"`
	Coordinates Coordinates  `json:"coordinates" yaml:"coordinates"`
	WaterLevel  float64      `json:"waterLevel" yaml:"water_level"`
	ImageURL    string       `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
	Status      ReportStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time    `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

// UnmarshalJSON tolerates waterLevel sent as a string, which multipart-backed
// servers commonly echo back.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	aux := struct {
		*plain
		WaterLevel json.RawMessage `json:"waterLevel"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "model: decode report")
	}
	wl, err := decodeFlexibleFloat(aux.WaterLevel)
	if err != nil {
		return eris.Wrap(err, "model: decode waterLevel")
	}
	r.WaterLevel = wl
	return nil
}

func decodeFlexibleFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		if strings.TrimSpace(s) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

// OwnedBy returns the reports whose UserID matches userID, preserving order.
func OwnedBy(reports []Report, userID ID) []Report {
	if userID == "" {
		return nil
	}
	var out []Report
	for _, r := range reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// IndexOf returns the position of the report with the given id, or -1.
func IndexOf(reports []Report, id ID) int {
	for i := range reports {
		if reports[i].ID == id {
			return i
		}
	}
	return -1
}
