package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/model"
)

type ctxKey struct{}

func userFrom(ctx context.Context) model.ID {
	uid, _ := ctx.Value(ctxKey{}).(model.ID)
	return uid
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		tok = strings.TrimSpace(tok)
		if !ok || tok == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		uid := model.ID(tok)
		if b.tokens != nil {
			known, found := b.tokens[tok]
			if !found {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			uid = known
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

func (b *Backend) listReports(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.Reports())
}

func (b *Backend) getReport(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	b.mu.RLock()
	i := model.IndexOf(b.reports, id)
	var rep model.Report
	if i >= 0 {
		rep = b.reports[i]
	}
	b.mu.RUnlock()
	if i < 0 {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (b *Backend) createReport(w http.ResponseWriter, r *http.Request) {
	form, err := b.parseForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep := model.Report{
		UserID: userFrom(r.Context()),
		Status: model.StatusActive,
	}
	if err := form.apply(&rep, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if form.image != nil {
		rep.ImageURL = imageURL(r, b.storeImage(form.image))
	}

	b.mu.Lock()
	rep.ID = b.newID()
	rep.CreatedAt = b.now().UTC()
	b.reports = append([]model.Report{rep}, b.reports...)
	b.mu.Unlock()

	zap.L().Info("devserver: report created", zap.String("id", string(rep.ID)), zap.String("user", string(rep.UserID)))
	writeJSON(w, http.StatusCreated, rep)
}

func (b *Backend) updateReport(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	form, err := b.parseForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var imgName string
	if form.image != nil {
		imgName = b.storeImage(form.image)
	}

	b.mu.Lock()
	i := model.IndexOf(b.reports, id)
	if i < 0 {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if owner := b.reports[i].UserID; owner != "" && owner != userFrom(r.Context()) {
		b.mu.Unlock()
		writeError(w, http.StatusForbidden, "not your report")
		return
	}
	rep := b.reports[i]
	if err := form.apply(&rep, true); err != nil {
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if imgName != "" {
		rep.ImageURL = imageURL(r, imgName)
	}
	b.reports[i] = rep
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, rep)
}

func (b *Backend) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))

	b.mu.Lock()
	i := model.IndexOf(b.reports, id)
	if i < 0 {
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if owner := b.reports[i].UserID; owner != "" && owner != userFrom(r.Context()) {
		b.mu.Unlock()
		writeError(w, http.StatusForbidden, "not your report")
		return
	}
	b.reports = append(b.reports[:i:i], b.reports[i+1:]...)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]model.ID{"id": id})
}

func (b *Backend) getImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b.mu.RLock()
	img, ok := b.images[name]
	b.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", img.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.data)
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func (b *Backend) storeImage(u *upload) string {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(u.filename))
	ct := u.contentType
	if ct == "" {
		ct = http.DetectContentType(u.data)
	}
	b.mu.Lock()
	b.images[name] = image{contentType: ct, data: u.data}
	b.mu.Unlock()
	return name
}

// reportForm is a parsed multipart submission. Absent fields are nil.
type reportForm struct {
	location    *string
	description *string
	waterLevel  *string
	coordinates *string
	status      *string
	image       *upload
}

func (b *Backend) parseForm(r *http.Request) (*reportForm, error) {
	if err := r.ParseMultipartForm(b.maxUpload); err != nil {
		return nil, eris.New("expected multipart/form-data body")
	}
	f := &reportForm{
		location:    formValue(r.MultipartForm, "location"),
		description: formValue(r.MultipartForm, "description"),
		waterLevel:  formValue(r.MultipartForm, "waterLevel"),
		coordinates: formValue(r.MultipartForm, "coordinates"),
		status:      formValue(r.MultipartForm, "status"),
	}

	file, hdr, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close() //nolint:errcheck
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, eris.New("could not read image")
		}
		f.image = &upload{filename: hdr.Filename, contentType: hdr.Header.Get("Content-Type"), data: data}
	case errors.Is(err, http.ErrMissingFile):
	default:
		return nil, eris.New("could not read image")
	}
	return f, nil
}

func formValue(form *multipart.Form, name string) *string {
	vals, ok := form.Value[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}

func (f *reportForm) apply(rep *model.Report, update bool) error {
	if f.location != nil {
		rep.Location = *f.location
	}
	if f.description != nil {
		rep.Description = *f.description
	}
	if f.waterLevel != nil {
		s := strings.TrimSpace(*f.waterLevel)
		if s == "" {
			rep.WaterLevel = 0
		} else {
			wl, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return eris.New("waterLevel must be a number")
			}
			rep.WaterLevel = wl
		}
	}
	if f.coordinates != nil && strings.TrimSpace(*f.coordinates) != "" {
		var c model.Coordinates
		if err := json.Unmarshal([]byte(*f.coordinates), &c); err != nil {
			return eris.New("coordinates must be a JSON object with lat and lng")
		}
		rep.Coordinates = c
	}
	if update && f.status != nil {
		st, err := model.ParseStatus(*f.status)
		if err != nil {
			return eris.New("status must be ACTIVE or RESOLVED")
		}
		rep.Status = st
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("devserver: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
