package floodapi

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/rotisserie/eris"
)

// Field is one text part of a multipart submission.
type Field struct {
	Name  string
	Value string
}

// File is one binary part of a multipart submission.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Payload is an ordered multipart body for create/update requests.
type Payload struct {
	Fields []Field
	Files  []File
}

// Set appends a text field, or replaces it if the name is already present.
func (p *Payload) Set(name, value string) {
	for i := range p.Fields {
		if p.Fields[i].Name == name {
			p.Fields[i].Value = value
			return
		}
	}
	p.Fields = append(p.Fields, Field{Name: name, Value: value})
}

// Get returns the value of a text field.
func (p *Payload) Get(name string) (string, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Attach adds a file part.
func (p *Payload) Attach(f File) {
	p.Files = append(p.Files, f)
}

// File returns the file part for a field name.
func (p *Payload) File(field string) (File, bool) {
	for _, f := range p.Files {
		if f.Field == field {
			return f, true
		}
	}
	return File{}, false
}

// Names lists field then file part names in encoding order.
func (p *Payload) Names() []string {
	out := make([]string, 0, len(p.Fields)+len(p.Files))
	for _, f := range p.Fields {
		out = append(out, f.Name)
	}
	for _, f := range p.Files {
		out = append(out, f.Field)
	}
	return out
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode renders the payload as multipart/form-data and returns the body and
// its Content-Type header value.
func (p *Payload) Encode() ([]byte, string, error) {
	if p == nil {
		return nil, "", eris.New("floodapi: nil payload")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range p.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", eris.Wrapf(err, "floodapi: write field %s", f.Name)
		}
	}
	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", eris.Wrapf(err, "floodapi: create part %s", f.Field)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", eris.Wrapf(err, "floodapi: write part %s", f.Field)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "floodapi: close multipart writer")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
