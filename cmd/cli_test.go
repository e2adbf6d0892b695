package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodwatch/internal/devserver"
	"github.com/sells-group/floodwatch/internal/export"
	"github.com/sells-group/floodwatch/internal/model"
)

// fakeNominatim answers reverse lookups with a fixed Kemang address and
// forward lookups for "Kemang" only.
func fakeNominatim(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/reverse":
			_, _ = fmt.Fprint(w, `{"address":{"suburb":"Kemang","city":"Jakarta Selatan","state":"DKI Jakarta"}}`)
		case "/search":
			if strings.Contains(r.URL.Query().Get("q"), "Kemang") {
				_, _ = fmt.Fprint(w, `[{"lat":"-6.2605","lon":"106.8139","display_name":"Kemang, Jakarta Selatan"}]`)
				return
			}
			_, _ = fmt.Fprint(w, `[]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type cliFixture struct {
	backend *devserver.Backend
	geoHits *atomic.Int32
}

// newCLI points the CLI at a fresh development backend and fake geocoder,
// signed in as "alice".
func newCLI(t *testing.T, seed ...model.Report) *cliFixture {
	t.Helper()

	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	n := 100
	backend := devserver.New(
		devserver.WithSeed(seed...),
		devserver.WithIDs(func() model.ID {
			n++
			return model.ID(fmt.Sprint(n))
		}),
	)
	api := httptest.NewServer(backend.Handler())
	t.Cleanup(api.Close)
	geo, hits := fakeNominatim(t)

	t.Setenv("FLOODWATCH_API_BASE_URL", api.URL)
	t.Setenv("FLOODWATCH_API_RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("FLOODWATCH_GEOCODE_BASE_URL", geo.URL)
	t.Setenv("FLOODWATCH_GEOCODE_RATE_LIMIT", "1000")
	t.Setenv("FLOODWATCH_CACHE_DRIVER", "none")
	t.Setenv("FLOODWATCH_SESSION_USER_ID", "alice")
	t.Setenv("FLOODWATCH_SESSION_TOKEN", "alice")
	t.Setenv("FLOODWATCH_LOG_LEVEL", "error")

	return &cliFixture{backend: backend, geoHits: hits}
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func seedReports() []model.Report {
	return []model.Report{
		{ID: "2", UserID: "bob", Location: "Cibubur", Description: "surut", Status: model.StatusActive,
			Coordinates: model.Coordinates{Lat: -6.37, Lng: 106.89}, WaterLevel: 20},
		{ID: "1", UserID: "alice", Location: "Kemang, Jakarta Selatan", Description: "knee deep", Status: model.StatusActive,
			Coordinates: model.Coordinates{Lat: -6.26, Lng: 106.81}, WaterLevel: 45},
	}
}

func TestCLI_ListAndShow(t *testing.T) {
	f := newCLI(t, seedReports()...)

	out, _, err := f.run(t, "reports", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cibubur")
	assert.Contains(t, out, "Kemang")

	out, _, err = f.run(t, "reports", "list", "--mine", "-o", "json")
	require.NoError(t, err)
	var mine []model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, model.ID("1"), mine[0].ID)

	out, _, err = f.run(t, "reports", "show", "2", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "location: Cibubur")

	_, _, err = f.run(t, "reports", "show", "99")
	assert.ErrorIs(t, err, errReportNotFound)
}

func TestCLI_CreateWithAddressSearch(t *testing.T) {
	f := newCLI(t)

	out, stderr, err := f.run(t, "reports", "create",
		"--description", "air masuk rumah",
		"--water-level", "60",
		"--location", "Kemang",
		"-o", "json",
	)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "report created")

	var created model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, model.ID("101"), created.ID)
	assert.Equal(t, model.ID("alice"), created.UserID)
	assert.Equal(t, "Kemang", created.Location)
	assert.InDelta(t, -6.2605, created.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 60.0, created.WaterLevel, 1e-9)

	require.Len(t, f.backend.Reports(), 1)
}

func TestCLI_CreateWithPointReverseGeocodes(t *testing.T) {
	f := newCLI(t)

	out, stderr, err := f.run(t, "reports", "create",
		"--description", "banjir",
		"--water-level", "30",
		"--lat", "-6.2605", "--lng", "106.8139",
		"-o", "json",
	)
	require.NoError(t, err, stderr)

	var created model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Kemang, Jakarta Selatan, DKI Jakarta", created.Location)
	assert.Positive(t, f.geoHits.Load())
}

func TestCLI_CreateWithImage(t *testing.T) {
	f := newCLI(t)
	img := filepath.Join(t.TempDir(), "banjir.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n0000"), 0o600))

	out, stderr, err := f.run(t, "reports", "create",
		"--description", "foto", "--water-level", "10", "--location", "Kemang",
		"--image", img, "-o", "json",
	)
	require.NoError(t, err, stderr)
	var created model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Contains(t, created.ImageURL, "/images/")
	assert.True(t, strings.HasSuffix(created.ImageURL, ".png"))
}

func TestCLI_CreateUnknownAddressNotifies(t *testing.T) {
	f := newCLI(t)

	_, stderr, err := f.run(t, "reports", "create",
		"--description", "x", "--water-level", "5", "--location", "Atlantis",
	)
	require.NoError(t, err)
	assert.Contains(t, stderr, "location not found")
	assert.Contains(t, stderr, "report created")
	assert.Equal(t, model.DefaultCoordinates, f.backend.Reports()[0].Coordinates)
}

func TestCLI_CreateRequiresToken(t *testing.T) {
	f := newCLI(t)
	t.Setenv("FLOODWATCH_SESSION_TOKEN", "")

	_, _, err := f.run(t, "reports", "create", "--description", "x", "--water-level", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.token is required")
	assert.Empty(t, f.backend.Reports())
}

func TestCLI_EditAndStatusRules(t *testing.T) {
	f := newCLI(t, seedReports()...)

	out, stderr, err := f.run(t, "reports", "edit", "1", "--water-level", "90", "--status", "resolved", "-o", "json")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "report updated")

	var updated model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, model.StatusResolved, updated.Status)
	assert.InDelta(t, 90.0, updated.WaterLevel, 1e-9)
	assert.Equal(t, "knee deep", updated.Description)

	_, _, err = f.run(t, "reports", "edit", "1", "--status", "ACTIVE")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCLI_EditSomeoneElsesReportFails(t *testing.T) {
	f := newCLI(t, seedReports()...)

	_, _, err := f.run(t, "reports", "edit", "2", "--description", "mine now")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not your report")
}

func TestCLI_Resolve(t *testing.T) {
	f := newCLI(t, seedReports()...)

	out, stderr, err := f.run(t, "reports", "resolve", "1", "99")
	require.Error(t, err)
	assert.Contains(t, out, "resolved 1 of 2 reports")
	assert.Contains(t, stderr, "99")

	for _, r := range f.backend.Reports() {
		if r.ID == "1" {
			assert.Equal(t, model.StatusResolved, r.Status)
		}
	}

	out, _, err = f.run(t, "reports", "resolve", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "resolved 1 of 1 reports")
}

func TestCLI_Delete(t *testing.T) {
	f := newCLI(t, seedReports()...)

	_, stderr, err := f.run(t, "reports", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "report deleted")
	require.Len(t, f.backend.Reports(), 1)

	_, _, err = f.run(t, "reports", "delete", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not your report")
	assert.Len(t, f.backend.Reports(), 1)
}

func TestCLI_Export(t *testing.T) {
	f := newCLI(t, seedReports()...)
	dir := t.TempDir()

	xlsxPath := filepath.Join(dir, "reports.xlsx")
	out, _, err := f.run(t, "reports", "export", "--out", xlsxPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 reports")
	rows, err := export.ReadXLSX(xlsxPath)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	shpPath := filepath.Join(dir, "mine")
	_, _, err = f.run(t, "reports", "export", "--format", "shp", "--out", shpPath, "--mine")
	require.NoError(t, err)
	recs, err := export.ReadShapefile(shpPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].Attributes["ID"])

	_, _, err = f.run(t, "reports", "export", "--out", filepath.Join(dir, "reports.csv"))
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestCLI_Geocode(t *testing.T) {
	f := newCLI(t)

	out, _, err := f.run(t, "geocode", "reverse", "--", "-6.26", "106.81")
	require.NoError(t, err)
	assert.Equal(t, "Kemang, Jakarta Selatan, DKI Jakarta\n", out)

	out, _, err = f.run(t, "geocode", "search", "Kemang", "Jakarta")
	require.NoError(t, err)
	assert.Contains(t, out, "-6.260500")

	out, _, err = f.run(t, "geocode", "search", "Atlantis")
	require.NoError(t, err)
	assert.Equal(t, "no matches\n", out)

	_, _, err = f.run(t, "geocode", "reverse", "north", "106.81")
	assert.Error(t, err)
}

func TestCLI_Dashboard(t *testing.T) {
	f := newCLI(t, seedReports()...)

	out, _, err := f.run(t, "dashboard", "-o", "json")
	require.NoError(t, err)

	var view dashboardView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 2, view.Summary.Total)
	assert.Equal(t, 2, view.Summary.Active)
	assert.Equal(t, 2, view.Summary.Reporters)
	assert.Equal(t, 1, view.Summary.Mine)
	require.NotNil(t, view.Summary.Extent)
	require.Len(t, view.Hotspots, 2)
	assert.Equal(t, "Kemang, Jakarta Selatan, DKI Jakarta", view.Hotspots[0].Area)

	out, _, err = f.run(t, "dashboard", "--hotspots", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Reports:")
	assert.NotContains(t, out, "Hotspots:")
}
