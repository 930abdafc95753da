// Package lutstore persists raw oracle samples for one build configuration
// in a SQLite file.
package lutstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/ilut/internal/db"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/version"
)

var logf = monitoring.Prefixed("[lutstore]")

// Extension is the file extension of sample store files.
const Extension = ".lutdb"

// Path returns the canonical location of the store for cfg under root:
// <root>/LUTs/<SENSOR>_<PROFILE>/viewz_<VZ>/<key>.lutdb. Validation
// stores live under <root>/validation so they are never mixed into a
// production build.
func Path(root string, cfg lut.Config) string {
	base := root
	if cfg.Mode == lut.ModeValidation {
		base = filepath.Join(root, "validation")
	}
	return filepath.Join(base, "LUTs", cfg.Family(), fmt.Sprintf("viewz_%d", cfg.ViewZenith), cfg.Key()+Extension)
}

// Store is the durable sample collection of one configuration. It is safe
// for concurrent use.
type Store struct {
	db   *db.DB
	cfg  lut.Config
	path string
	now  func() time.Time
}

// Create opens the store at path, creating it for cfg if it does not exist.
// An existing store must have been created for the same cfg.
func Create(path string, cfg lut.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("open sample store: %w", err)
	}
	s := &Store{db: d, cfg: cfg, path: path, now: time.Now}

	stored, err := s.readMeta(context.Background())
	switch {
	case errors.Is(err, errNoMeta):
		if err := s.writeMeta(context.Background()); err != nil {
			d.Close()
			return nil, err
		}
		logf("created %s for %s", path, cfg.Key())
	case err != nil:
		d.Close()
		return nil, err
	case stored != cfg:
		d.Close()
		return nil, &lut.ConfigurationError{
			Field:  "store",
			Value:  path,
			Reason: fmt.Sprintf("store was created for %s, not %s", stored.Key(), cfg.Key()),
		}
	}
	return s, nil
}

// Open opens an existing store read-write and recovers its configuration.
// Pending schema migrations are applied.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sample store: %w", err)
	}
	d, err := db.NewDBWithMigrationCheck(path, true)
	if err != nil {
		return nil, &lut.StorageCorruptionError{Path: path, Reason: "cannot open database", Err: err}
	}
	return attach(d, path)
}

// OpenReadOnly opens an existing store for reading only. The file is never
// written or migrated; writes through the returned store fail.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sample store: %w", err)
	}
	d, err := db.OpenReadOnly(path)
	if err != nil {
		return nil, &lut.StorageCorruptionError{Path: path, Reason: "cannot open database", Err: err}
	}
	return attach(d, path)
}

func attach(d *db.DB, path string) (*Store, error) {
	s := &Store{db: d, path: path, now: time.Now}
	cfg, err := s.readMeta(context.Background())
	if err != nil {
		d.Close()
		if errors.Is(err, errNoMeta) {
			return nil, &lut.StorageCorruptionError{Path: path, Reason: "missing store metadata"}
		}
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Config returns the configuration the store was created for.
func (s *Store) Config() lut.Config { return s.cfg }

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// AttachAdminRoutes exposes the store on the /debug/ routes of mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	return s.db.AttachAdminRoutes(mux, "Sample store "+s.cfg.Key())
}

var errNoMeta = errors.New("store metadata not found")

func (s *Store) writeMeta(ctx context.Context) error {
	return s.putMeta(ctx, map[string]string{
		"sensor":          string(s.cfg.Sensor),
		"aerosol_profile": string(s.cfg.AerosolProfile),
		"view_zenith":     strconv.Itoa(s.cfg.ViewZenith),
		"mode":            string(s.cfg.Mode),
		"created_at":      s.now().UTC().Format(time.RFC3339),
		"builder_version": version.Version,
	})
}

// putMeta inserts metadata entries; existing keys keep their value.
func (s *Store) putMeta(ctx context.Context, meta map[string]string) error {
	return db.RetryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lut_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, k, v); err != nil {
				return fmt.Errorf("write store metadata: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Oracle returns the oracle kind recorded by ClaimOracle, or "" if the
// store has not been claimed.
func (s *Store) Oracle(ctx context.Context) (string, error) {
	var kind string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM lut_meta WHERE key = 'oracle'`).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &lut.StorageCorruptionError{Path: s.path, Reason: "cannot read metadata", Err: err}
	}
	return kind, nil
}

// ClaimOracle records kind as the oracle whose samples the store holds.
// Resuming under a different oracle, or adopting samples whose oracle was
// never recorded, is a ConfigurationError.
func (s *Store) ClaimOracle(ctx context.Context, kind string) error {
	if kind == "" {
		return &lut.ConfigurationError{Field: "oracle", Value: s.path, Reason: "an oracle kind is required to write samples"}
	}
	recorded, err := s.Oracle(ctx)
	if err != nil {
		return err
	}
	if recorded == "" {
		n, err := s.Count(ctx, "")
		if err != nil {
			return err
		}
		if n > 0 {
			return &lut.ConfigurationError{
				Field:  "oracle",
				Value:  kind,
				Reason: fmt.Sprintf("store %s holds %d samples from an unrecorded oracle", s.path, n),
			}
		}
		if err := s.putMeta(ctx, map[string]string{"oracle": kind}); err != nil {
			return err
		}
		// A concurrent claim may have won the insert.
		if recorded, err = s.Oracle(ctx); err != nil {
			return err
		}
	}
	if recorded != kind {
		return &lut.ConfigurationError{
			Field:  "oracle",
			Value:  kind,
			Reason: fmt.Sprintf("store %s holds samples from the %s oracle", s.path, recorded),
		}
	}
	return nil
}

func (s *Store) readMeta(ctx context.Context) (lut.Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM lut_meta`)
	if err != nil {
		return lut.Config{}, &lut.StorageCorruptionError{Path: s.path, Reason: "cannot read metadata", Err: err}
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return lut.Config{}, &lut.StorageCorruptionError{Path: s.path, Reason: "cannot read metadata", Err: err}
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return lut.Config{}, &lut.StorageCorruptionError{Path: s.path, Reason: "cannot read metadata", Err: err}
	}
	if len(meta) == 0 {
		return lut.Config{}, errNoMeta
	}

	vz, err := strconv.Atoi(meta["view_zenith"])
	if err != nil {
		return lut.Config{}, &lut.StorageCorruptionError{Path: s.path, Reason: "invalid view_zenith metadata", Err: err}
	}
	cfg := lut.Config{
		Sensor:         lut.Sensor(meta["sensor"]),
		AerosolProfile: lut.AerosolProfile(meta["aerosol_profile"]),
		ViewZenith:     vz,
		Mode:           lut.Mode(meta["mode"]),
	}
	if err := cfg.Validate(); err != nil {
		return lut.Config{}, &lut.StorageCorruptionError{Path: s.path, Reason: "invalid configuration metadata", Err: err}
	}
	return cfg, nil
}

func keyArgs(k lut.SampleKey) []interface{} {
	p := k.Point
	return []interface{}{k.Band, p.SolarZenith, p.WaterVapour, p.Ozone, p.AOT, p.Altitude}
}

const keyWhere = `band = ? AND solar_zenith = ? AND water_vapour = ? AND ozone = ? AND aot = ? AND altitude = ?`

// Has reports whether a sample is stored for key.
func (s *Store) Has(ctx context.Context, key lut.SampleKey) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Get returns the stored outputs for key.
func (s *Store) Get(ctx context.Context, key lut.SampleKey) (lut.Outputs, bool, error) {
	var o lut.Outputs
	err := s.db.QueryRowContext(ctx,
		`SELECT edir, edif, tau2, lp FROM lut_samples WHERE `+keyWhere, keyArgs(key)...,
	).Scan(&o.Edir, &o.Edif, &o.Tau2, &o.Lp)
	if errors.Is(err, sql.ErrNoRows) {
		return lut.Outputs{}, false, nil
	}
	if err != nil {
		return lut.Outputs{}, false, fmt.Errorf("get sample %s: %w", key, err)
	}
	return o, true, nil
}

// Put durably stores rec. Each call commits on its own so a crash never
// loses a completed sample. Re-putting a key overwrites it; a differing
// value is logged since the oracle is expected to be deterministic.
func (s *Store) Put(ctx context.Context, rec lut.SampleRecord) error {
	args := append(keyArgs(rec.Key),
		rec.Outputs.Edir, rec.Outputs.Edif, rec.Outputs.Tau2, rec.Outputs.Lp, s.now().UnixNano())

	return db.RetryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO lut_samples (
				band, solar_zenith, water_vapour, ozone, aot, altitude,
				edir, edif, tau2, lp, written_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("put sample %s: %w", rec.Key, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}

		prev, _, err := s.Get(ctx, rec.Key)
		if err != nil {
			return err
		}
		if prev == rec.Outputs {
			return nil
		}
		logf("warning: %s rewritten with different outputs (was %+v, now %+v)", rec.Key, prev, rec.Outputs)
		_, err = s.db.ExecContext(ctx, `
			UPDATE lut_samples SET edir = ?, edif = ?, tau2 = ?, lp = ?, written_at = ?
			WHERE `+keyWhere,
			append([]interface{}{rec.Outputs.Edir, rec.Outputs.Edif, rec.Outputs.Tau2, rec.Outputs.Lp, s.now().UnixNano()},
				keyArgs(rec.Key)...)...)
		if err != nil {
			return fmt.Errorf("overwrite sample %s: %w", rec.Key, err)
		}
		return nil
	})
}

// Keys loads the set of stored keys for constant-time resume checks.
func (s *Store) Keys(ctx context.Context) (map[lut.SampleKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT band, solar_zenith, water_vapour, ozone, aot, altitude FROM lut_samples`)
	if err != nil {
		return nil, fmt.Errorf("list sample keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[lut.SampleKey]struct{})
	for rows.Next() {
		var k lut.SampleKey
		p := &k.Point
		if err := rows.Scan(&k.Band, &p.SolarZenith, &p.WaterVapour, &p.Ozone, &p.AOT, &p.Altitude); err != nil {
			return nil, fmt.Errorf("scan sample key: %w", err)
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// Count returns the number of stored samples, optionally for one band.
func (s *Store) Count(ctx context.Context, band string) (int, error) {
	var n int
	var err error
	if band == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lut_samples`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lut_samples WHERE band = ?`, band).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// Iterate calls fn for every stored sample in key order. Iteration stops at
// the first error from fn. fn must not call back into the store.
func (s *Store) Iterate(ctx context.Context, fn func(lut.SampleRecord) error) error {
	return s.iterate(ctx, "", fn)
}

// IterateBand is Iterate restricted to one band.
func (s *Store) IterateBand(ctx context.Context, band string, fn func(lut.SampleRecord) error) error {
	if band == "" {
		return errors.New("iterate band: empty band name")
	}
	return s.iterate(ctx, band, fn)
}

func (s *Store) iterate(ctx context.Context, band string, fn func(lut.SampleRecord) error) error {
	query := `SELECT band, solar_zenith, water_vapour, ozone, aot, altitude, edir, edif, tau2, lp
		FROM lut_samples`
	var args []interface{}
	if band != "" {
		query += ` WHERE band = ?`
		args = append(args, band)
	}
	query += ` ORDER BY band, solar_zenith, water_vapour, ozone, aot, altitude`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("iterate samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r lut.SampleRecord
		p := &r.Key.Point
		if err := rows.Scan(&r.Key.Band, &p.SolarZenith, &p.WaterVapour, &p.Ozone, &p.AOT, &p.Altitude,
			&r.Outputs.Edir, &r.Outputs.Edif, &r.Outputs.Tau2, &r.Outputs.Lp); err != nil {
			return &lut.StorageCorruptionError{Path: s.path, Reason: "unreadable sample row", Err: err}
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate samples: %w", err)
	}
	return nil
}
