package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/internal/config"
	"github.com/bosqueabierto/mtbmap/internal/export"
	"github.com/bosqueabierto/mtbmap/internal/kml"
	"github.com/bosqueabierto/mtbmap/pkg/core"
)

// newRootCommand builds the command tree. Command output goes to out; logs go
// to the session log file.
func newRootCommand(out io.Writer) *ffcli.Command {
	var (
		rootFlagSet = flag.NewFlagSet(AppName, flag.ContinueOnError)
		opts        appOptions
	)
	rootFlagSet.StringVar(&opts.configDir, "config", ".", "directory containing "+config.FileName)
	rootFlagSet.StringVar(&opts.logLevel, "log-level", "", "log level, overrides logLevel from the config file")

	withApp := func(console bool, inner func(context.Context, *app, []string) error) func(context.Context, []string) error {
		return func(ctx context.Context, args []string) error {
			o := opts
			o.console = console
			a, err := newApp(ctx, o)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			defer a.reporter.Recover()
			return inner(ctx, a, args)
		}
	}

	serveFlagSet := flag.NewFlagSet(AppName+" serve", flag.ContinueOnError)
	addr := serveFlagSet.String("addr", "", "listen address, overrides server.address")
	cmdServe := &ffcli.Command{
		Name:       "serve",
		ShortUsage: AppName + " serve [-addr host:port]",
		ShortHelp:  "serve the trail map API",
		FlagSet:    serveFlagSet,
		Exec: withApp(true, func(ctx context.Context, a *app, _ []string) error {
			listen := *addr
			if listen == "" {
				listen = config.GetString("server.address")
			}
			return runServe(ctx, a, listen)
		}),
	}

	statsFlagSet := flag.NewFlagSet(AppName+" stats", flag.ContinueOnError)
	loadAll := statsFlagSet.Bool("load", false, "load every archive and compare declared and computed stats")
	cmdStats := &ffcli.Command{
		Name:       "stats",
		ShortUsage: AppName + " stats [-load]",
		ShortHelp:  "print catalog totals",
		FlagSet:    statsFlagSet,
		Exec: withApp(false, func(ctx context.Context, a *app, _ []string) error {
			return runStats(ctx, a, out, *loadAll)
		}),
	}

	kmlFlagSet := flag.NewFlagSet(AppName+" export-kml", flag.ContinueOnError)
	kmlOut := kmlFlagSet.String("out", "routes.kml", "output file")
	kmlName := kmlFlagSet.String("name", "Rutas MTB", "document name")
	cmdExportKML := &ffcli.Command{
		Name:       "export-kml",
		ShortUsage: AppName + " export-kml [-out file] [-name name]",
		ShortHelp:  "load every route and write them to one KML file",
		FlagSet:    kmlFlagSet,
		Exec: withApp(false, func(ctx context.Context, a *app, _ []string) error {
			return runExportKML(ctx, a, out, *kmlOut, *kmlName)
		}),
	}

	gpxFlagSet := flag.NewFlagSet(AppName+" gpx", flag.ContinueOnError)
	gpxDir := gpxFlagSet.String("dir", ".", "directory to save the file in")
	gpxSummary := gpxFlagSet.Bool("summary", false, "print the summary only, do not save the file")
	cmdGPX := &ffcli.Command{
		Name:       "gpx",
		ShortUsage: AppName + " gpx [-dir path] [-summary] <trail id>",
		ShortHelp:  "download a trail's GPX export",
		FlagSet:    gpxFlagSet,
		Exec: withApp(false, func(ctx context.Context, a *app, args []string) error {
			if len(args) != 1 {
				return errors.New("need exactly one trail id")
			}
			return runGPX(ctx, a, out, args[0], *gpxDir, *gpxSummary)
		}),
	}

	importFlagSet := flag.NewFlagSet(AppName+" import-catalog", flag.ContinueOnError)
	importFile := importFlagSet.String("file", "", "catalog JSON file, the embedded catalog when empty")
	cmdImport := &ffcli.Command{
		Name:       "import-catalog",
		ShortUsage: AppName + " import-catalog [-file trails.json]",
		ShortHelp:  "replace the trails stored in the database",
		FlagSet:    importFlagSet,
		Exec: withApp(false, func(ctx context.Context, a *app, _ []string) error {
			return runImport(ctx, a, out, *importFile)
		}),
	}

	return &ffcli.Command{
		ShortUsage:  AppName + " [flags] <subcommand>",
		FlagSet:     rootFlagSet,
		Options:     []ff.Option{ff.WithEnvVarPrefix("MTBMAP")},
		Subcommands: []*ffcli.Command{cmdServe, cmdStats, cmdExportKML, cmdGPX, cmdImport},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

func runStats(ctx context.Context, a *app, out io.Writer, load bool) error {
	cat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	totals := cat.Totals()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Trails:\t%d\n", totals.Trails)
	fmt.Fprintf(tw, "Distance:\t%s km\n", humanize.CommafWithDigits(totals.Kilometers, 1))
	fmt.Fprintf(tw, "Ascent:\t%s m\n", humanize.Comma(int64(totals.Ascent)))
	if !load {
		return tw.Flush()
	}

	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	geoms := session.LoadAll(ctx)
	failed := 0
	for _, t := range cat.All() {
		if session.Cache().Err(t.ID) != nil {
			failed++
		}
	}
	fmt.Fprintf(tw, "Loaded:\t%d geometries, %d failed\n", len(geoms), failed)
	if err := tw.Flush(); err != nil {
		return err
	}

	var disagree []string
	for _, t := range cat.All() {
		rec, ok := session.Reconciliation(t.ID)
		if ok && rec.Disagrees() {
			disagree = append(disagree, fmt.Sprintf("%s\t%s\t%s\t%s",
				t.ID,
				t.Name,
				formatMetrics(rec.Declared),
				formatMetrics(rec.Computed)))
		}
	}
	if len(disagree) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDECLARED\tCOMPUTED")
	fmt.Fprintln(tw, strings.Join(disagree, "\n"))
	return tw.Flush()
}

func formatMetrics(m core.Metrics) string {
	return fmt.Sprintf("%s km %s", humanize.FtoaWithDigits(m.DistanceKm, 2), core.FormatElevation(m.Ascent, m.Descent))
}

func runExportKML(ctx context.Context, a *app, out io.Writer, path, name string) error {
	session, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	if err := session.LoadRoutesIfNeeded(ctx); err != nil {
		return err
	}

	trails := session.Catalog().All()
	geoms := make(map[string][]core.TrailGeometry, len(trails))
	written := 0
	for _, t := range trails {
		if g := session.FeaturesForTrail(t.ID); len(g) > 0 {
			geoms[t.ID] = g
			written++
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := kml.Write(f, name, trails, geoms); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	a.logs.WriteLog("export-kml", fmt.Sprintf("Wrote %d trails to %s", written, path), "info")
	fmt.Fprintf(out, "Wrote %d of %d trails to %s (%s)\n", written, len(trails), path, humanize.Bytes(uint64(info.Size())))
	return nil
}

func runGPX(ctx context.Context, a *app, out io.Writer, id, dir string, summaryOnly bool) error {
	cat, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}
	trail, err := cat.Get(id)
	if err != nil {
		return err
	}

	data, name, err := export.Download(ctx, a.openSource(), trail)
	if err != nil {
		return err
	}
	summary, err := export.Summarize(data)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", summary.Name)
	fmt.Fprintf(tw, "Tracks:\t%d (%d segments, %s points)\n", summary.Tracks, summary.Segments, humanize.Comma(int64(summary.Points)))
	fmt.Fprintf(tw, "Distance:\t%s km\n", humanize.FtoaWithDigits(summary.Metrics.DistanceKm, 2))
	fmt.Fprintf(tw, "Elevation:\t%s\n", core.FormatElevation(summary.Metrics.Ascent, summary.Metrics.Descent))
	if summary.Start != nil {
		fmt.Fprintf(tw, "Start:\t%.5f, %.5f\n", summary.Start.Lat, summary.Start.Lng)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if summaryOnly {
		return nil
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	fmt.Fprintf(out, "Saved %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
	return nil
}

func runImport(ctx context.Context, a *app, out io.Writer, file string) error {
	var (
		cat *catalog.Catalog
		err error
	)
	if file == "" {
		cat, err = catalog.Embedded()
	} else {
		cat, err = catalog.LoadFile(file)
	}
	if err != nil {
		return err
	}

	store, err := a.catalogStore(ctx)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, cat); err != nil {
		return err
	}

	kind := a.db.Dialect()
	a.logger.Info("Imported catalog", "trails", cat.Len(), "database", kind)
	fmt.Fprintf(out, "Imported %d trails into %s\n", cat.Len(), kind)
	return nil
}
