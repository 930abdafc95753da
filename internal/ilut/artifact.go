package ilut

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/lut"
)

// Extension is the file extension of iLUT artifacts.
const Extension = ".ilut"

const (
	formatName    = "ilut"
	formatVersion = 1
)

// ArtifactPath mirrors the sample store layout under <root>/iLUTs:
// <root>/iLUTs/<SENSOR>_<PROFILE>/viewz_<VZ>/<key>_<band>.ilut.
func ArtifactPath(root string, cfg lut.Config, band string) string {
	base := root
	if cfg.Mode == lut.ModeValidation {
		base = filepath.Join(root, "validation")
	}
	return filepath.Join(base, "iLUTs", cfg.Family(), fmt.Sprintf("viewz_%d", cfg.ViewZenith),
		fmt.Sprintf("%s_%s%s", cfg.Key(), band, Extension))
}

// ParseArtifactName recovers the configuration and band from an artifact
// file name such as "LANDSAT_OLI_CO_0_full_B4.ilut".
func ParseArtifactName(name string) (lut.Config, string, error) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, Extension) {
		return lut.Config{}, "", fmt.Errorf("%s: not an iLUT artifact", name)
	}
	parts := strings.Split(strings.TrimSuffix(base, Extension), "_")
	if len(parts) < 5 {
		return lut.Config{}, "", fmt.Errorf("%s: expected <sensor>_<profile>_<vz>_<mode>_<band>", name)
	}
	n := len(parts)
	band := parts[n-1]
	vz, err := strconv.Atoi(parts[n-3])
	if err != nil {
		return lut.Config{}, "", fmt.Errorf("%s: bad view zenith %q", name, parts[n-3])
	}
	cfg, err := lut.ParseConfig(strings.Join(parts[:n-4], "_"), parts[n-4], vz, parts[n-2])
	if err != nil {
		return lut.Config{}, "", fmt.Errorf("%s: %w", name, err)
	}
	if _, ok := cfg.Sensor.Band(band); !ok {
		return lut.Config{}, "", fmt.Errorf("%s: sensor %s has no band %s", name, cfg.Sensor, band)
	}
	return cfg, band, nil
}

// artifact is the on-disk document. Channel arrays are little-endian
// float64 so NaN markers for missing test-mode samples survive JSON.
type artifact struct {
	Format         string            `json:"format"`
	FormatVersion  int               `json:"format_version"`
	Method         string            `json:"method"`
	Config         lut.Config        `json:"config"`
	Band           lut.Band          `json:"band"`
	Dimensions     []string          `json:"dimensions"`
	Axes           [][]float64       `json:"axes"`
	Bounds         [][2]float64      `json:"bounds"`
	Channels       map[string][]byte `json:"channels"`
	Missing        int               `json:"missing"`
	BuiltAt        time.Time         `json:"built_at"`
	BuilderVersion string            `json:"builder_version"`
	Checksum       string            `json:"checksum"`
}

func encodeFloats(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 8", len(buf))
	}
	vals := make([]float64, len(buf)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return vals, nil
}

func checksum(axes [][]float64, channels map[string][]byte) string {
	h := sha256.New()
	for _, a := range axes {
		h.Write(encodeFloats(a))
	}
	for _, c := range lut.Channels {
		h.Write(channels[c.String()])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteTo encodes l as a gzip-compressed artifact.
func (l *ILUT) WriteTo(w io.Writer) (int64, error) {
	doc := artifact{
		Format:         formatName,
		FormatVersion:  formatVersion,
		Method:         Method,
		Config:         l.Config,
		Band:           l.Band,
		Channels:       make(map[string][]byte, lut.NumChannels),
		Missing:        l.Missing,
		BuiltAt:        l.BuiltAt,
		BuilderVersion: l.BuilderVersion,
	}
	for _, d := range lut.Dimensions {
		doc.Dimensions = append(doc.Dimensions, d.String())
		doc.Axes = append(doc.Axes, l.axes[d])
		lo, hi := l.Bounds(d)
		doc.Bounds = append(doc.Bounds, [2]float64{lo, hi})
	}
	for _, c := range lut.Channels {
		doc.Channels[c.String()] = encodeFloats(l.channels[c])
	}
	doc.Checksum = checksum(doc.Axes, doc.Channels)

	cw := &countingWriter{w: w}
	zw := gzip.NewWriter(cw)
	if err := json.NewEncoder(zw).Encode(&doc); err != nil {
		return cw.n, fmt.Errorf("encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Save publishes l at path atomically, creating parent directories.
func (l *ILUT) Save(fsys fsutil.FileSystem, path string) error {
	var buf bytes.Buffer
	if _, err := l.WriteTo(&buf); err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := fsys.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	logf("wrote %s (%d nodes, %d bytes)", path, l.Nodes(), buf.Len())
	return nil
}

// Open loads the artifact at path. Unreadable or inconsistent files yield
// *lut.StorageCorruptionError.
func Open(fsys fsutil.FileSystem, path string) (*ILUT, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	l, err := Read(bytes.NewReader(data))
	if err != nil {
		var ce *lut.StorageCorruptionError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return l, nil
}

// Read decodes an artifact stream.
func Read(r io.Reader) (*ILUT, error) {
	corrupt := func(reason string, err error) error {
		return &lut.StorageCorruptionError{Path: "<stream>", Reason: reason, Err: err}
	}

	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, corrupt("not a gzip stream", err)
	}
	defer zr.Close()

	var doc artifact
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, corrupt("malformed document", err)
	}
	if doc.Format != formatName {
		return nil, corrupt(fmt.Sprintf("unexpected format %q", doc.Format), nil)
	}
	if doc.FormatVersion != formatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported format version %d", doc.FormatVersion), nil)
	}
	if doc.Method != Method {
		return nil, corrupt(fmt.Sprintf("unsupported interpolation method %q", doc.Method), nil)
	}
	if err := doc.Config.Validate(); err != nil {
		return nil, corrupt("invalid configuration", err)
	}
	if len(doc.Dimensions) != lut.NumDimensions || len(doc.Axes) != lut.NumDimensions {
		return nil, corrupt(fmt.Sprintf("expected %d dimensions, found %d", lut.NumDimensions, len(doc.Dimensions)), nil)
	}
	var axes grid.Axes
	for _, d := range lut.Dimensions {
		if doc.Dimensions[d] != d.String() {
			return nil, corrupt(fmt.Sprintf("dimension %d is %q, expected %q", d, doc.Dimensions[d], d), nil)
		}
		axes[d] = doc.Axes[d]
	}
	if got := checksum(doc.Axes, doc.Channels); got != doc.Checksum {
		return nil, corrupt("checksum mismatch", nil)
	}

	var channels [lut.NumChannels][]float64
	for _, c := range lut.Channels {
		raw, ok := doc.Channels[c.String()]
		if !ok {
			return nil, corrupt(fmt.Sprintf("channel %s missing", c), nil)
		}
		vals, err := decodeFloats(raw)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("channel %s", c), err)
		}
		channels[c] = vals
	}

	l, err := newILUT(doc.Config, doc.Band, axes, channels)
	if err != nil {
		return nil, corrupt("inconsistent arrays", err)
	}
	if len(doc.Bounds) != lut.NumDimensions {
		return nil, corrupt(fmt.Sprintf("expected %d recorded bounds, found %d", lut.NumDimensions, len(doc.Bounds)), nil)
	}
	for i, d := range lut.Dimensions {
		lo, hi := l.Bounds(d)
		if doc.Bounds[i][0] != lo || doc.Bounds[i][1] != hi {
			return nil, corrupt(fmt.Sprintf("recorded bounds of %s disagree with its axis", d), nil)
		}
	}
	if l.Missing != doc.Missing {
		return nil, corrupt(fmt.Sprintf("recorded %d missing nodes, found %d", doc.Missing, l.Missing), nil)
	}
	l.BuiltAt = doc.BuiltAt
	l.BuilderVersion = doc.BuilderVersion
	return l, nil
}
