// Package api serves interpolated radiative-transfer outputs and
// atmospheric-correction coefficients over HTTP.
package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/ilut/internal/atmcorr"
	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/httputil"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/interp"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/security"
	"github.com/banshee-data/ilut/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	fs         fsutil.FileSystem
	cache      *ilut.Cache
	root       string
	reportsDir string
}

// NewServer serves artifacts found under root through cache. Validation
// reports are served from reportsDir; an empty reportsDir disables them.
func NewServer(fsys fsutil.FileSystem, cache *ilut.Cache, root, reportsDir string) *Server {
	return &Server{fs: fsys, cache: cache, root: root, reportsDir: reportsDir}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/luts", s.listLUTs)
	mux.HandleFunc("/api/evaluate", s.evaluate)
	mux.HandleFunc("/api/reflectance", s.reflectance)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("GET /api/reports/{name}", s.serveReport)
	return mux
}

// AttachAdminRoutes adds cache statistics to the tsweb debug index on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("ilut-cache", "Loaded interpolants and artifact reads", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]int{
			"loaded": s.cache.Len(),
			"loads":  s.cache.Loads(),
		})
	})
}

// LUTInfo describes one artifact on disk.
type LUTInfo struct {
	Config lut.Config `json:"config"`
	Band   string     `json:"band"`
	Path   string     `json:"path"`
}

func (s *Server) artifacts() ([]LUTInfo, error) {
	var paths []string
	for _, base := range []string{s.root, filepath.Join(s.root, "validation")} {
		matches, err := s.fs.Glob(filepath.Join(base, "iLUTs", "*", "viewz_*", "*"+ilut.Extension))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	out := make([]LUTInfo, 0, len(paths))
	for _, p := range paths {
		cfg, band, err := ilut.ParseArtifactName(p)
		if err != nil {
			monitoring.Logf("[api] skipping %s: %v", p, err)
			continue
		}
		// Files whose name disagrees with their directory are not served.
		if ilut.ArtifactPath(s.root, cfg, band) != p {
			monitoring.Logf("[api] skipping misplaced artifact %s", p)
			continue
		}
		out = append(out, LUTInfo{Config: cfg, Band: band, Path: p})
	}
	return out, nil
}

func (s *Server) listLUTs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	luts, err := s.artifacts()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list iLUTs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, luts)
}

// EvaluateRequest selects an interpolant and a query point.
type EvaluateRequest struct {
	Sensor         string             `json:"sensor"`
	AerosolProfile string             `json:"aerosol_profile"`
	ViewZenith     int                `json:"view_zenith"`
	Mode           string             `json:"mode,omitempty"` // default "full"
	Band           string             `json:"band"`
	Point          lut.ParameterPoint `json:"point"`
}

type EvaluateResponse struct {
	Config  lut.Config         `json:"config"`
	Band    string             `json:"band"`
	Point   lut.ParameterPoint `json:"point"`
	Outputs lut.Outputs        `json:"outputs"`
}

// ReflectanceRequest adds the acquisition date and, optionally, a measured
// at-sensor radiance to an EvaluateRequest. Exactly one of DayOfYear or
// Date must be set.
type ReflectanceRequest struct {
	EvaluateRequest
	DayOfYear int      `json:"doy,omitempty"`
	Date      string   `json:"date,omitempty"` // YYYY-MM-DD
	Radiance  *float64 `json:"radiance,omitempty"`
}

type ReflectanceResponse struct {
	EvaluateResponse
	DayOfYear       int                  `json:"doy"`
	OrbitCorrection float64              `json:"orbit_correction"`
	Coefficients    atmcorr.Coefficients `json:"coefficients"`
	Reflectance     *float64             `json:"reflectance,omitempty"`
}

// writeError maps query failures to status codes: bad configurations are
// the caller's fault, missing artifacts are 404, and queries the
// interpolant cannot answer are 422.
func writeError(w http.ResponseWriter, err error) {
	var (
		ce  *lut.ConfigurationError
		ode *lut.OutOfDomainError
		sce *lut.StorageCorruptionError
	)
	switch {
	case errors.As(err, &ce):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &ode), errors.Is(err, interp.ErrMissingSample):
		httputil.UnprocessableEntity(w, err.Error())
	case errors.As(err, &sce):
		monitoring.Logf("[api] %v", err)
		httputil.InternalServerError(w, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) query(req EvaluateRequest) (EvaluateResponse, error) {
	mode := req.Mode
	if mode == "" {
		mode = string(lut.ModeFull)
	}
	cfg, err := lut.ParseConfig(req.Sensor, req.AerosolProfile, req.ViewZenith, mode)
	if err != nil {
		return EvaluateResponse{}, err
	}
	if _, ok := cfg.Sensor.Band(req.Band); !ok {
		return EvaluateResponse{}, &lut.ConfigurationError{Field: "band", Value: req.Band, Reason: "not a band of " + string(cfg.Sensor)}
	}
	l, err := s.cache.Get(cfg, req.Band)
	if err != nil {
		return EvaluateResponse{}, err
	}
	out, err := l.Evaluate(req.Point)
	if err != nil {
		return EvaluateResponse{}, err
	}
	return EvaluateResponse{Config: cfg, Band: req.Band, Point: req.Point, Outputs: out}, nil
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req EvaluateRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	resp, err := s.query(req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

func (req ReflectanceRequest) dayOfYear() (int, error) {
	switch {
	case req.Date != "" && req.DayOfYear != 0:
		return 0, fmt.Errorf("give either doy or date, not both")
	case req.Date != "":
		t, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			return 0, fmt.Errorf("invalid date %q: %w", req.Date, err)
		}
		return atmcorr.DayOfYear(t), nil
	case req.DayOfYear != 0:
		if _, err := atmcorr.OrbitCorrection(req.DayOfYear); err != nil {
			return 0, err
		}
		return req.DayOfYear, nil
	}
	return 0, fmt.Errorf("doy or date is required")
}

func (s *Server) reflectance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req ReflectanceRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	doy, err := req.dayOfYear()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	base, err := s.query(req.EvaluateRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	corr, _ := atmcorr.OrbitCorrection(doy)
	coef, err := atmcorr.NewCoefficients(base.Outputs, doy)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	resp := ReflectanceResponse{
		EvaluateResponse: base,
		DayOfYear:        doy,
		OrbitCorrection:  corr,
		Coefficients:     coef,
	}
	if req.Radiance != nil {
		rho, err := coef.Reflectance(*req.Radiance)
		if err != nil {
			httputil.UnprocessableEntity(w, err.Error())
			return
		}
		resp.Reflectance = &rho
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"method":     ilut.Method,
	})
}

// serveReport serves a file written by lut-validate. The name is reduced
// to a plain file name before it touches the filesystem.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request) {
	if s.reportsDir == "" {
		httputil.NotFound(w, "reports are not enabled")
		return
	}
	name := r.PathValue("name")
	if clean := security.SanitizeFilename(name); clean != name {
		httputil.BadRequest(w, "invalid report name")
		return
	}
	path := filepath.Join(s.reportsDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.reportsDir); err != nil {
		httputil.BadRequest(w, "invalid report name")
		return
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.NotFound(w, "no such report")
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	contentType := "application/octet-stream"
	switch filepath.Ext(name) {
	case ".html":
		contentType = "text/html; charset=utf-8"
	case ".png":
		contentType = "image/png"
	case ".json":
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
