package form

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// Field names accepted by SetField and sent in the payload.
const (
	FieldLocation    = "location"
	FieldWaterLevel  = "waterLevel"
	FieldDescription = "description"
	FieldCoordinates = "coordinates"
	FieldStatus      = "status"
	FieldImage       = "image"
)

// Draft is the unsaved edit state of one report.
type Draft struct {
	ID          model.ID
	Location    string
	Description string
	Coordinates model.Coordinates
	Status      model.ReportStatus

	// WaterLevel is nil while the input is empty or not a positive number.
	WaterLevel *float64

	// ImageURL is the already-uploaded image when editing.
	ImageURL string

	// ImagePreview is a data URL for a pending image, else ImageURL.
	ImagePreview string
	ImageName    string
	ImageType    string

	image []byte
}

// HasNewImage reports whether an image was picked during this session.
func (d Draft) HasNewImage() bool {
	return d.image != nil
}

// Missing lists the required fields that are still empty.
func (d Draft) Missing() []string {
	var out []string
	if strings.TrimSpace(d.Location) == "" {
		out = append(out, FieldLocation)
	}
	if d.WaterLevel == nil {
		out = append(out, FieldWaterLevel)
	}
	if strings.TrimSpace(d.Description) == "" {
		out = append(out, FieldDescription)
	}
	return out
}

func (d Draft) clone() Draft {
	out := d
	if d.WaterLevel != nil {
		wl := *d.WaterLevel
		out.WaterLevel = &wl
	}
	if d.image != nil {
		out.image = bytes.Clone(d.image)
	}
	return out
}

func draftFrom(r model.Report) Draft {
	d := Draft{
		ID:           r.ID,
		Location:     r.Location,
		Description:  r.Description,
		Coordinates:  r.Coordinates.OrDefault(),
		Status:       r.Status,
		ImageURL:     r.ImageURL,
		ImagePreview: r.ImageURL,
	}
	if r.WaterLevel > 0 {
		wl := r.WaterLevel
		d.WaterLevel = &wl
	}
	return d
}

// parseWaterLevel coerces anything but a positive number to nil.
func parseWaterLevel(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// readImage loads a pending image and derives its data URL preview.
func readImage(name string, r io.Reader) (data []byte, mime, preview, filename string, err error) {
	data, err = io.ReadAll(r)
	if err != nil {
		return nil, "", "", "", eris.Wrap(err, "form: read image")
	}
	m := mimetype.Detect(data)
	filename = name
	if filename == "" {
		filename = "image" + m.Extension()
	}
	preview = "data:" + m.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
	return data, m.String(), preview, filename, nil
}

// BuildPayload renders d as the multipart fields the backend expects, in
// order: location, waterLevel, description, coordinates, then status in
// update mode and image when a new one was picked.
func BuildPayload(d Draft, mode Mode) (*floodapi.Payload, error) {
	coords, err := json.Marshal(d.Coordinates)
	if err != nil {
		return nil, eris.Wrap(err, "form: encode coordinates")
	}

	p := &floodapi.Payload{}
	p.Set(FieldLocation, d.Location)
	waterLevel := ""
	if d.WaterLevel != nil {
		waterLevel = strconv.FormatFloat(*d.WaterLevel, 'f', -1, 64)
	}
	p.Set(FieldWaterLevel, waterLevel)
	p.Set(FieldDescription, d.Description)
	p.Set(FieldCoordinates, string(coords))
	if mode == ModeUpdate {
		p.Set(FieldStatus, string(d.Status))
	}
	if d.HasNewImage() {
		p.Attach(floodapi.File{
			Field:       FieldImage,
			Filename:    d.ImageName,
			ContentType: d.ImageType,
			Data:        d.image,
		})
	}
	return p, nil
}
