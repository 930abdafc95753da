// Command lut-validate compares iLUT artifacts against the oracle, either
// through a validation-mode sample store built on the midpoints of the
// full grid, or through Monte Carlo points evaluated on the fly, and
// writes histograms and an HTML summary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/ilut/internal/config"
	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/oracle"
	"github.com/banshee-data/ilut/internal/security"
	"github.com/banshee-data/ilut/internal/validate"
	"github.com/banshee-data/ilut/internal/version"
)

var (
	sensor      = flag.String("sensor", "", "Sensor of the iLUTs to validate")
	aero        = flag.String("aero", "", "Aerosol profile of the iLUTs to validate")
	viewZenith  = flag.Int("viewz", 0, "View zenith of the iLUTs to validate")
	bands       = flag.String("bands", "", "Comma-separated band subset (default: every band)")
	configFile  = flag.String("config", "", "Build configuration JSON (default: "+config.DefaultConfigPath+" if present)")
	dataRoot    = flag.String("root", "", "Data root for LUTs/ and iLUTs/ (overrides config)")
	outDir      = flag.String("out", "", "Report directory (default: <root>/reports)")
	samples     = flag.Int("samples", 0, "Monte Carlo points per band; 0 disables")
	seed        = flag.Uint("seed", 1, "Monte Carlo seed")
	reflectance = flag.Float64("rho", validate.DefaultReflectance, "Lambertian reflectance for the round-trip error")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type job struct {
	Config  lut.Config // full-mode configuration of the artifacts
	Bands   []string
	Root    string
	Samples int
	Seed    uint32
	Rho     float64
	Oracle  oracle.Oracle // required when Samples > 0
}

// validationStore opens the midpoint store for cfg if one was built.
func validationStore(root string, cfg lut.Config) (*lutstore.Store, error) {
	vcfg := cfg
	vcfg.Mode = lut.ModeValidation
	s, err := lutstore.OpenReadOnly(lutstore.Path(root, vcfg))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return s, err
}

// run validates every requested band. A band without an artifact is an
// error; a missing validation store only disables that comparison.
func run(ctx context.Context, fsys fsutil.FileSystem, j job) ([]*validate.Result, error) {
	store, err := validationStore(j.Root, j.Config)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	} else {
		log.Printf("no validation store for %s; run lut-build -mode validation to enable grid comparison", j.Config.Key())
	}
	if store == nil && j.Samples == 0 {
		return nil, fmt.Errorf("nothing to compare: no validation store and -samples is 0")
	}

	names := j.Bands
	if len(names) == 0 {
		for _, b := range j.Config.Sensor.Bands() {
			names = append(names, b.Name)
		}
	}

	var results []*validate.Result
	for _, band := range names {
		if _, ok := j.Config.Sensor.Band(band); !ok {
			return nil, &lut.ConfigurationError{Field: "band", Value: band, Reason: "not a band of " + string(j.Config.Sensor)}
		}
		l, err := ilut.Open(fsys, ilut.ArtifactPath(j.Root, j.Config, band))
		if err != nil {
			return nil, fmt.Errorf("band %s: %w", band, err)
		}
		if store != nil {
			r, err := validate.CompareStore(ctx, store, l, j.Rho)
			if err != nil {
				return nil, fmt.Errorf("band %s: %w", band, err)
			}
			results = append(results, r)
		}
		if j.Samples > 0 {
			r, err := validate.MonteCarlo(ctx, j.Oracle, l, j.Samples, j.Seed, j.Rho)
			if err != nil {
				return nil, fmt.Errorf("band %s: %w", band, err)
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// writeReports saves histograms, a JSON summary and an HTML page under
// dir and returns the HTML path.
func writeReports(fsys fsutil.FileSystem, cfg lut.Config, results []*validate.Result, dir string) (string, error) {
	for _, r := range results {
		if _, err := validate.WriteHistograms(r, dir); err != nil {
			return "", err
		}
	}

	name := security.SanitizeFilename(cfg.Key() + "_validation")
	summary, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	if err := fsys.WriteFileAtomic(filepath.Join(dir, name+".json"), summary, 0644); err != nil {
		return "", err
	}

	var page strings.Builder
	if err := validate.WriteHTMLReport(&page, cfg.Key()+" validation", results); err != nil {
		return "", err
	}
	htmlPath := filepath.Join(dir, name+".html")
	if err := fsys.WriteFileAtomic(htmlPath, []byte(page.String()), 0644); err != nil {
		return "", err
	}
	return htmlPath, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("lut-validate %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := lut.ParseConfig(*sensor, *aero, *viewZenith, string(lut.ModeFull))
	if err != nil {
		log.Fatalf("invalid request: %v", err)
	}
	bc, err := config.LoadOrDefault(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	j := job{Config: cfg, Root: bc.GetDataRoot(), Samples: *samples, Seed: uint32(*seed), Rho: *reflectance}
	if *dataRoot != "" {
		j.Root = *dataRoot
	}
	if *bands != "" {
		j.Bands = strings.Split(*bands, ",")
	}
	if j.Samples > 0 {
		if j.Oracle, err = oracle.FromConfig(bc); err != nil {
			log.Fatalf("failed to create oracle: %v", err)
		}
	}
	dir := *outDir
	if dir == "" {
		dir = filepath.Join(j.Root, "reports")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("failed to create report directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := run(ctx, fsutil.OSFileSystem{}, j)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}
	for _, r := range results {
		log.Printf("%s %s: n=%d reflectance mean=%.3f%% p95=%.3f%% max=%.3f%%",
			r.Band, r.Source, r.Compared, r.Surface.Mean, r.Surface.P95, r.Surface.Max)
	}
	page, err := writeReports(fsutil.OSFileSystem{}, cfg, results, dir)
	if err != nil {
		log.Fatalf("failed to write reports: %v", err)
	}
	log.Printf("report written to %s", page)
}
