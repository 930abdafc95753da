package lut

import (
	"fmt"
	"sort"
	"strings"
)

// Band is one spectral band of a sensor. Wavelength is the nominal band
// centre in micrometres and is informational; the oracle selects the
// spectral response by sensor and band name.
type Band struct {
	Name       string  `json:"name"`
	Wavelength float64 `json:"wavelength_um"`
}

// Sensor is a supported satellite sensor.
type Sensor string

const (
	LandsatTM  Sensor = "LANDSAT_TM"
	LandsatETM Sensor = "LANDSAT_ETM"
	LandsatOLI Sensor = "LANDSAT_OLI"
	ASTER      Sensor = "ASTER"
	S2AMSI     Sensor = "S2A_MSI"
)

// VSWIR bands per sensor, in build order.
var sensorBands = map[Sensor][]Band{
	LandsatTM: {
		{"B1", 0.485}, {"B2", 0.560}, {"B3", 0.660},
		{"B4", 0.830}, {"B5", 1.650}, {"B7", 2.215},
	},
	LandsatETM: {
		{"B1", 0.4825}, {"B2", 0.565}, {"B3", 0.660},
		{"B4", 0.825}, {"B5", 1.650}, {"B7", 2.220},
	},
	LandsatOLI: {
		{"B2", 0.4826}, {"B3", 0.5613}, {"B4", 0.6546},
		{"B5", 0.8646}, {"B6", 1.6090}, {"B7", 2.2010},
	},
	ASTER: {
		{"B1", 0.556}, {"B2", 0.661}, {"B3B", 0.807},
		{"B4", 1.656}, {"B5", 2.167}, {"B6", 2.208},
		{"B7", 2.266}, {"B8", 2.336}, {"B9", 2.400},
	},
	S2AMSI: {
		{"B1", 0.443}, {"B2", 0.490}, {"B3", 0.560}, {"B4", 0.665},
		{"B5", 0.705}, {"B6", 0.740}, {"B7", 0.783}, {"B8", 0.842},
		{"B8A", 0.865}, {"B9", 0.945}, {"B10", 1.375}, {"B11", 1.610},
		{"B12", 2.190},
	},
}

// Sensors returns every supported sensor, sorted by name.
func Sensors() []Sensor {
	out := make([]Sensor, 0, len(sensorBands))
	for s := range sensorBands {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseSensor validates a sensor name. Matching is case-insensitive.
func ParseSensor(s string) (Sensor, error) {
	sensor := Sensor(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := sensorBands[sensor]; !ok {
		return "", &ConfigurationError{Field: "sensor", Value: s, Reason: "unsupported sensor"}
	}
	return sensor, nil
}

// Bands returns a copy of the sensor's band table.
func (s Sensor) Bands() []Band {
	bands := sensorBands[s]
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// Band looks up a band by name.
func (s Sensor) Band(name string) (Band, bool) {
	for _, b := range sensorBands[s] {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// AerosolProfile is the aerosol model code passed to the oracle.
type AerosolProfile string

const (
	BiomassBurning AerosolProfile = "BB"
	Continental    AerosolProfile = "CO"
	Desert         AerosolProfile = "DE"
	Maritime       AerosolProfile = "MA"
	NoAerosols     AerosolProfile = "NO"
	Urban          AerosolProfile = "UR"
)

var aerosolNames = map[AerosolProfile]string{
	BiomassBurning: "BiomassBurning",
	Continental:    "Continental",
	Desert:         "Desert",
	Maritime:       "Maritime",
	NoAerosols:     "NoAerosols",
	Urban:          "Urban",
}

// ParseAerosolProfile accepts the two-letter code or the long name.
func ParseAerosolProfile(s string) (AerosolProfile, error) {
	in := strings.TrimSpace(s)
	if p := AerosolProfile(strings.ToUpper(in)); aerosolNames[p] != "" {
		return p, nil
	}
	for code, name := range aerosolNames {
		if strings.EqualFold(name, in) {
			return code, nil
		}
	}
	return "", &ConfigurationError{Field: "aerosol_profile", Value: s, Reason: "unsupported aerosol profile"}
}

// Name returns the long form, e.g. "Continental".
func (a AerosolProfile) Name() string { return aerosolNames[a] }

// Mode selects which built-in grid a build enumerates.
type Mode string

const (
	ModeTest       Mode = "test"
	ModeFull       Mode = "full"
	ModeValidation Mode = "validation"
)

// ParseMode accepts "test", "full" or "validation", with or without a
// leading "--".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "--")); m {
	case ModeTest, ModeFull, ModeValidation:
		return m, nil
	}
	return "", &ConfigurationError{Field: "mode", Value: s, Reason: "must be one of test, full, validation"}
}

// MaxViewZenith is the largest supported sensor view zenith in degrees.
const MaxViewZenith = 75

// Config fixes the non-gridded inputs of a build. Every sample store and
// every iLUT belongs to exactly one Config.
type Config struct {
	Sensor         Sensor         `json:"sensor"`
	AerosolProfile AerosolProfile `json:"aerosol_profile"`
	ViewZenith     int            `json:"view_zenith"`
	Mode           Mode           `json:"mode"`
}

// ParseConfig parses and validates the four build arguments.
func ParseConfig(sensor, aerosol string, viewZenith int, mode string) (Config, error) {
	s, err := ParseSensor(sensor)
	if err != nil {
		return Config{}, err
	}
	a, err := ParseAerosolProfile(aerosol)
	if err != nil {
		return Config{}, err
	}
	m, err := ParseMode(mode)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Sensor: s, AerosolProfile: a, ViewZenith: viewZenith, Mode: m}
	return cfg, cfg.Validate()
}

// Validate checks that every field names a supported variant.
func (c Config) Validate() error {
	if _, ok := sensorBands[c.Sensor]; !ok {
		return &ConfigurationError{Field: "sensor", Value: string(c.Sensor), Reason: "unsupported sensor"}
	}
	if aerosolNames[c.AerosolProfile] == "" {
		return &ConfigurationError{Field: "aerosol_profile", Value: string(c.AerosolProfile), Reason: "unsupported aerosol profile"}
	}
	if c.ViewZenith < 0 || c.ViewZenith > MaxViewZenith {
		return &ConfigurationError{
			Field:  "view_zenith",
			Value:  fmt.Sprint(c.ViewZenith),
			Reason: fmt.Sprintf("must be between 0 and %d degrees", MaxViewZenith),
		}
	}
	switch c.Mode {
	case ModeTest, ModeFull, ModeValidation:
	default:
		return &ConfigurationError{Field: "mode", Value: string(c.Mode), Reason: "must be one of test, full, validation"}
	}
	return nil
}

// Family is the sensor/profile directory name, e.g. "LANDSAT_OLI_CO".
func (c Config) Family() string {
	return fmt.Sprintf("%s_%s", c.Sensor, c.AerosolProfile)
}

// Key is the stable identifier used for store files and cache lookups,
// e.g. "LANDSAT_OLI_CO_0_full".
func (c Config) Key() string {
	return fmt.Sprintf("%s_%d_%s", c.Family(), c.ViewZenith, c.Mode)
}

func (c Config) String() string { return c.Key() }
