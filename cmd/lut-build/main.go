// Command lut-build evaluates the radiative-transfer oracle over a grid and
// stores the samples for one sensor, aerosol profile and view zenith.
//
// Usage:
//
//	lut-build -sensor LANDSAT_OLI -aero CO -viewz 0 -mode full
//	lut-build migrate <store.lutdb> up|down|status|force <N>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/banshee-data/ilut/internal/build"
	"github.com/banshee-data/ilut/internal/config"
	"github.com/banshee-data/ilut/internal/db"
	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/oracle"
	"github.com/banshee-data/ilut/internal/version"
)

var (
	sensor      = flag.String("sensor", "", "Sensor, e.g. LANDSAT_OLI or S2A_MSI")
	aero        = flag.String("aero", "", "Aerosol profile code (BB, CO, DE, MA, NO, UR) or name")
	viewZenith  = flag.Int("viewz", 0, "Sensor view zenith in whole degrees [0, 75]")
	mode        = flag.String("mode", "", "Grid to build: test, full or validation (required)")
	bands       = flag.String("bands", "", "Comma-separated band subset (default: every band of the sensor)")
	configFile  = flag.String("config", "", "Build configuration JSON (default: "+config.DefaultConfigPath+" if present)")
	workers     = flag.Int("workers", 0, "Concurrent oracle calls (overrides config)")
	dataRoot    = flag.String("root", "", "Data root for LUTs/ and iLUTs/ (overrides config)")
	dryRun      = flag.Bool("dry-run", false, "Print the grid size and exit without evaluating")
	noProgress  = flag.Bool("no-progress", false, "Disable the progress bar")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options are the resolved inputs of one build.
type options struct {
	Config     lut.Config
	Bands      []string
	Build      *config.BuildConfig
	Workers    int
	Root       string
	Oracle     oracle.Oracle
	OracleKind string // recorded in the store; only this kind may resume it
	Observe    func(build.Progress)
}

// resolve validates the flags against the configuration file. Every
// configuration error surfaces here, before the oracle is touched.
func resolve() (options, *grid.Spec, error) {
	if *mode == "" {
		return options{}, nil, &lut.ConfigurationError{Field: "mode", Reason: "-mode is required (test, full or validation)"}
	}
	cfg, err := lut.ParseConfig(*sensor, *aero, *viewZenith, *mode)
	if err != nil {
		return options{}, nil, err
	}
	bc, err := config.LoadOrDefault(*configFile)
	if err != nil {
		return options{}, nil, err
	}

	opts := options{Config: cfg, Build: bc, Workers: bc.GetWorkers(), Root: bc.GetDataRoot()}
	if *workers > 0 {
		opts.Workers = *workers
	}
	if *dataRoot != "" {
		opts.Root = *dataRoot
	}
	if *bands != "" {
		opts.Bands = strings.Split(*bands, ",")
	}

	spec, err := buildSpec(opts)
	if err != nil {
		return options{}, nil, err
	}
	if opts.Oracle, err = oracle.FromConfig(bc); err != nil {
		return options{}, nil, err
	}
	opts.OracleKind = bc.GetOracleKind()
	return opts, spec, nil
}

func buildSpec(opts options) (*grid.Spec, error) {
	overrides, err := opts.Build.GetGridOverrides()
	if err != nil {
		return nil, err
	}
	spec, err := grid.Enumerate(opts.Config, overrides)
	if err != nil {
		return nil, err
	}
	if len(opts.Bands) > 0 {
		return spec.WithBands(opts.Bands...)
	}
	return spec, nil
}

// run fills the store for opts.Config. The store is closed on every path.
func run(ctx context.Context, opts options, spec *grid.Spec) (*build.Report, error) {
	path := lutstore.Path(opts.Root, opts.Config)
	store, err := lutstore.Create(path, opts.Config)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.ClaimOracle(ctx, opts.OracleKind); err != nil {
		return nil, err
	}

	log.Printf("building %s: %d bands x %d points into %s", opts.Config.Key(), len(spec.Bands), spec.PointsPerBand(), path)
	orch := build.New(store, opts.Oracle, build.Options{
		Workers:      opts.Workers,
		Timeout:      opts.Build.GetOracleTimeout(),
		Retries:      opts.Build.GetOracleRetries(),
		RetryBackoff: opts.Build.GetRetryBackoff(),
		OnProgress:   opts.Observe,
	})
	return orch.Build(ctx, spec)
}

// progressObserver draws a bar sized on the first report, once the number
// of missing samples is known.
func progressObserver(desc string) func(build.Progress) {
	var bar *progressbar.ProgressBar
	return func(p build.Progress) {
		if bar == nil {
			bar = progressbar.Default(int64(p.Total), desc)
		}
		bar.Set(p.Done)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if len(os.Args) < 3 {
			db.PrintMigrateHelp(os.Stdout)
			os.Exit(1)
		}
		if err := db.RunMigrateCommand(os.Args[3:], os.Args[2], os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Printf("lut-build %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	opts, spec, err := resolve()
	if err != nil {
		log.Fatalf("invalid build request: %v", err)
	}
	if *dryRun {
		fmt.Printf("%s: %d bands x %d points = %d samples\n", opts.Config.Key(), len(spec.Bands), spec.PointsPerBand(), spec.Size())
		return
	}

	if !*noProgress {
		opts.Observe = progressObserver(opts.Config.Key())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := run(ctx, opts, spec)
	if report != nil {
		fmt.Println()
		log.Print(report.Summary())
		for _, f := range report.Failures {
			log.Printf("  failed %s after %d attempt(s): %s", f.Key, f.Attempts, f.Reason)
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		log.Fatalf("build interrupted; rerun to evaluate the remaining samples")
	case err != nil:
		log.Fatalf("build failed: %v", err)
	case !report.Complete():
		log.Fatalf("build incomplete: %d samples missing; rerun to retry them", len(report.Gaps))
	}
}
