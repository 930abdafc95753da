// Command ilut-server answers interpolation and atmospheric-correction
// queries over HTTP from the iLUT artifacts under a data root.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/ilut/internal/api"
	"github.com/banshee-data/ilut/internal/config"
	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	configFile  = flag.String("config", "", "Build configuration JSON (default: "+config.DefaultConfigPath+" if present)")
	dataRoot    = flag.String("root", "", "Data root containing iLUTs/ (overrides config)")
	reportsDir  = flag.String("reports", "", "Directory of validation reports to serve (default: <root>/reports)")
	storePath   = flag.String("store", "", "Sample store to expose on the /debug/ routes")
	cacheBudget = flag.Int64("cache-bytes", 0, "Memory budget of loaded iLUTs; 0 means a quarter of physical memory")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// newMux wires the API and, when store is set, its debug routes.
func newMux(srv *api.Server, store *lutstore.Store) (*http.ServeMux, error) {
	mux := srv.ServeMux()
	srv.AttachAdminRoutes(mux)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("ilut-server %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	bc, err := config.LoadOrDefault(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	root := bc.GetDataRoot()
	if *dataRoot != "" {
		root = *dataRoot
	}
	reports := *reportsDir
	if reports == "" {
		reports = filepath.Join(root, "reports")
	}

	var store *lutstore.Store
	if *storePath != "" {
		store, err = lutstore.OpenReadOnly(*storePath)
		if err != nil {
			log.Fatalf("failed to open sample store: %v", err)
		}
		defer store.Close()
	}

	fsys := fsutil.OSFileSystem{}
	if !fsys.Exists(reports) {
		log.Printf("report directory %s does not exist; /api/reports is disabled", reports)
		reports = ""
	}
	srv := api.NewServer(fsys, ilut.NewCache(fsys, root, *cacheBudget), root, reports)
	mux, err := newMux(srv, store)
	if err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("serving iLUTs from %s on %s", root, *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
