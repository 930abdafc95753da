// Command lut-interpolate turns a complete sample store into one iLUT
// artifact per band under <root>/iLUTs.
//
// Usage:
//
//	lut-interpolate -store data/LUTs/LANDSAT_OLI_CO/viewz_0/LANDSAT_OLI_CO_0_full.lutdb
//	lut-interpolate -sensor LANDSAT_OLI -aero CO -viewz 0 -mode full [-force]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/ilut/internal/config"
	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/version"
)

var (
	storePath   = flag.String("store", "", "Sample store to interpolate (alternative to -sensor/-aero/-viewz/-mode)")
	sensor      = flag.String("sensor", "", "Sensor of the store to locate under -root")
	aero        = flag.String("aero", "", "Aerosol profile of the store to locate under -root")
	viewZenith  = flag.Int("viewz", 0, "View zenith of the store to locate under -root")
	mode        = flag.String("mode", "full", "Mode of the store to locate under -root")
	bands       = flag.String("bands", "", "Comma-separated band subset (default: every band)")
	configFile  = flag.String("config", "", "Build configuration JSON (default: "+config.DefaultConfigPath+" if present)")
	dataRoot    = flag.String("root", "", "Data root for LUTs/ and iLUTs/ (overrides config)")
	force       = flag.Bool("force", false, "Rebuild artifacts that already exist")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// job describes one interpolation run.
type job struct {
	Store     string
	Root      string
	Bands     []string
	Overrides grid.Overrides
	Force     bool
}

// outcome reports what happened to one band.
type outcome struct {
	Band    string
	Path    string
	Skipped bool
}

func resolve() (job, error) {
	bc, err := config.LoadOrDefault(*configFile)
	if err != nil {
		return job{}, err
	}
	overrides, err := bc.GetGridOverrides()
	if err != nil {
		return job{}, err
	}
	j := job{Store: *storePath, Root: bc.GetDataRoot(), Overrides: overrides, Force: *force}
	if *dataRoot != "" {
		j.Root = *dataRoot
	}
	if *bands != "" {
		j.Bands = strings.Split(*bands, ",")
	}
	if j.Store == "" {
		cfg, err := lut.ParseConfig(*sensor, *aero, *viewZenith, *mode)
		if err != nil {
			return job{}, err
		}
		j.Store = lutstore.Path(j.Root, cfg)
	}
	return j, nil
}

// interpolate builds and saves the artifacts of j. Existing artifacts are
// kept unless j.Force is set. The store is closed on every path.
func interpolate(ctx context.Context, fsys fsutil.FileSystem, j job) ([]outcome, error) {
	store, err := lutstore.OpenReadOnly(j.Store)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	cfg := store.Config()
	spec, err := grid.Enumerate(cfg, j.Overrides)
	if err != nil {
		return nil, err
	}
	if len(j.Bands) > 0 {
		if spec, err = spec.WithBands(j.Bands...); err != nil {
			return nil, err
		}
	}

	var out []outcome
	for _, band := range spec.Bands {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := ilut.ArtifactPath(j.Root, cfg, band.Name)
		if !j.Force && fsys.Exists(path) {
			log.Printf("%s exists, skipping (use -force to rebuild)", path)
			out = append(out, outcome{Band: band.Name, Path: path, Skipped: true})
			continue
		}
		l, err := ilut.Build(ctx, store, spec, band)
		if err != nil {
			return out, fmt.Errorf("band %s: %w", band.Name, err)
		}
		if err := l.Save(fsys, path); err != nil {
			return out, err
		}
		out = append(out, outcome{Band: band.Name, Path: path})
	}
	return out, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("lut-interpolate %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	j, err := resolve()
	if err != nil {
		log.Fatalf("invalid request: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := interpolate(ctx, fsutil.OSFileSystem{}, j)
	built := 0
	for _, r := range results {
		if !r.Skipped {
			built++
		}
	}
	log.Printf("%d artifact(s) written, %d skipped", built, len(results)-built)
	if err != nil {
		log.Fatalf("interpolation failed: %v", err)
	}
}
