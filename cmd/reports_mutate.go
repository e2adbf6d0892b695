package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodwatch/internal/capture"
	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/form"
	"github.com/sells-group/floodwatch/internal/model"
	"github.com/sells-group/floodwatch/pkg/floodapi"
)

// draftFlags are the editable report fields shared by create and edit.
type draftFlags struct {
	description string
	waterLevel  string
	location    string
	lat         float64
	lng         float64
	image       string
	status      string
}

var (
	createFlags draftFlags
	editFlags   draftFlags
)

func addDraftFlags(cmd *cobra.Command, f *draftFlags) {
	cmd.Flags().StringVar(&f.description, "description", "", "what is happening at the location")
	cmd.Flags().StringVar(&f.waterLevel, "water-level", "", "water level in centimetres")
	cmd.Flags().StringVar(&f.location, "location", "", "address text; geocoded unless --lat/--lng are given")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude of the flooded point")
	cmd.Flags().Float64Var(&f.lng, "lng", 0, "longitude of the flooded point")
	cmd.Flags().StringVar(&f.image, "image", "", "path to a photo to attach")
}

// lastResult records the report returned by the most recent create or update
// so commands can print it.
type lastResult struct {
	form.ReportStore

	mu     sync.Mutex
	report *model.Report
}

func (l *lastResult) Create(ctx context.Context, p *floodapi.Payload) (*model.Report, error) {
	r, err := l.ReportStore.Create(ctx, p)
	l.record(r)
	return r, err
}

func (l *lastResult) Update(ctx context.Context, id model.ID, p *floodapi.Payload) (*model.Report, error) {
	r, err := l.ReportStore.Update(ctx, id, p)
	l.record(r)
	return r, err
}

func (l *lastResult) record(r *model.Report) {
	if r == nil {
		return
	}
	l.mu.Lock()
	l.report = r
	l.mu.Unlock()
}

func (l *lastResult) get() *model.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.report
}

// applyDraft drives the form the way a user would: place the point, type the
// address, fill the fields, attach the photo.
func applyDraft(cmd *cobra.Command, ctl *form.Controller, surface *capture.Headless, f draftFlags) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	hasPoint := flags.Changed("lat") || flags.Changed("lng")
	if hasPoint {
		at := model.Coordinates{Lat: f.lat, Lng: f.lng}
		if !at.Valid() {
			return eris.Errorf("coordinates %.6f,%.6f are out of range", f.lat, f.lng)
		}
		// Dragging the marker reverse-geocodes the new point into the location.
		surface.Drag(ctx, at)
	}
	if flags.Changed("location") {
		if hasPoint {
			if err := ctl.SetField(form.FieldLocation, f.location); err != nil {
				return err
			}
		} else if err := ctl.EnterAddress(ctx, f.location); err != nil {
			return err
		}
	}
	if flags.Changed("description") {
		if err := ctl.SetField(form.FieldDescription, f.description); err != nil {
			return err
		}
	}
	if flags.Changed("water-level") {
		if err := ctl.SetField(form.FieldWaterLevel, f.waterLevel); err != nil {
			return err
		}
	}
	if flags.Changed("status") {
		if err := ctl.SetField(form.FieldStatus, f.status); err != nil {
			return err
		}
	}
	if f.image != "" {
		file, err := os.Open(f.image)
		if err != nil {
			return eris.Wrap(err, "open image")
		}
		defer file.Close() //nolint:errcheck
		if err := ctl.SetImage(filepath.Base(f.image), file); err != nil {
			return err
		}
	}
	return nil
}

// submit sends the draft and prints the server's copy of the report.
func submit(cmd *cobra.Command, ctl *form.Controller, rec *lastResult) error {
	if missing := ctl.View().Draft.Missing(); len(missing) > 0 {
		zap.L().Warn("submitting with empty fields", zap.Strings("fields", missing))
	}
	if err := ctl.Submit(cmd.Context()); err != nil {
		if msg := ctl.View().Error; msg != "" {
			return eris.Wrap(err, msg)
		}
		return err
	}
	r := rec.get()
	if r == nil {
		return nil
	}
	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, outputFormat, r); done {
		return err
	}
	formatReport(out, *r)
	return nil
}

var reportsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new flood report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeMutate)
		if err != nil {
			return err
		}
		defer env.Close()

		rec := &lastResult{ReportStore: env.Reports}
		ctl := form.New(rec, env.Geocoder,
			form.WithNotifier(env.Notifier),
			form.WithStart(mapCenter(cfg)),
			form.WithCaptureOptions(capture.WithZoom(cfg.Map.Zoom)),
		)
		surface := capture.NewHeadless()
		if err := ctl.EnterCreate(surface); err != nil {
			return err
		}
		defer ctl.Close()

		if err := applyDraft(cmd, ctl, surface, createFlags); err != nil {
			return err
		}
		return submit(cmd, ctl, rec)
	},
}

var reportsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an existing flood report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeMutate)
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := findReport(cmd, env, model.ID(args[0]))
		if err != nil {
			return err
		}
		if !env.Session.Owns(*r) {
			zap.L().Warn("editing a report created by another user", zap.String("id", string(r.ID)))
		}

		rec := &lastResult{ReportStore: env.Reports}
		ctl := form.New(rec, env.Geocoder,
			form.WithNotifier(env.Notifier),
			form.WithCaptureOptions(capture.WithZoom(cfg.Map.Zoom)),
		)
		surface := capture.NewHeadless()
		if err := ctl.EnterEdit(surface, *r); err != nil {
			return err
		}
		defer ctl.Close()

		if err := applyDraft(cmd, ctl, surface, editFlags); err != nil {
			return err
		}
		return submit(cmd, ctl, rec)
	},
}

var resolveConcurrency int

var reportsResolveCmd = &cobra.Command{
	Use:   "resolve <id>...",
	Short: "Mark flood reports as resolved",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeMutate)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Reports.FetchAll(ctx); err != nil {
			return eris.Wrap(err, "reports resolve")
		}

		var (
			mu       sync.Mutex
			resolved []model.ID
			failed   int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(resolveConcurrency, 1))
		for _, arg := range args {
			id := model.ID(arg)
			g.Go(func() error {
				err := resolveOne(gctx, env, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					zap.L().Error("resolve failed", zap.String("id", string(id)), zap.Error(err))
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					return nil
				}
				resolved = append(resolved, id)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "resolved %d of %d reports\n", len(resolved), len(args))
		if failed > 0 {
			return eris.Errorf("%d reports could not be resolved", failed)
		}
		return nil
	},
}

// resolveOne moves one report to RESOLVED through its own form session.
// Reports that are already resolved are left alone.
func resolveOne(ctx context.Context, env *clientEnv, id model.ID) error {
	r := env.Reports.Find(id)
	if r == nil {
		return eris.Wrapf(errReportNotFound, "id %s", id)
	}
	if r.Status == model.StatusResolved {
		return nil
	}

	ctl := form.New(env.Reports, nil, form.WithNotifier(env.Notifier))
	if err := ctl.EnterEdit(capture.NewHeadless(), *r); err != nil {
		return err
	}
	defer ctl.Close()

	if err := ctl.SetField(form.FieldStatus, string(model.StatusResolved)); err != nil {
		return err
	}
	if err := ctl.Submit(ctx); err != nil {
		if msg := ctl.View().Error; msg != "" {
			return eris.Wrap(err, msg)
		}
		return err
	}
	return nil
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a flood report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeMutate)
		if err != nil {
			return err
		}
		defer env.Close()

		dialog := form.NewDeleteDialog(env.Reports, env.Notifier)
		dialog.Open(model.ID(args[0]))
		if err := dialog.Confirm(ctx); err != nil {
			if msg := dialog.View().Error; msg != "" {
				return eris.Wrap(err, msg)
			}
			return err
		}
		return nil
	},
}

func init() {
	addDraftFlags(reportsCreateCmd, &createFlags)
	_ = reportsCreateCmd.MarkFlagRequired("description")
	_ = reportsCreateCmd.MarkFlagRequired("water-level")

	addDraftFlags(reportsEditCmd, &editFlags)
	reportsEditCmd.Flags().StringVar(&editFlags.status, "status", "", "new status: ACTIVE or RESOLVED")

	reportsResolveCmd.Flags().IntVar(&resolveConcurrency, "concurrency", 4, "reports resolved in parallel")

	reportsCmd.AddCommand(reportsCreateCmd, reportsEditCmd, reportsResolveCmd, reportsDeleteCmd)
}
