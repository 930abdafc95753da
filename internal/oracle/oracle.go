// Package oracle defines the contract of the radiative-transfer model that
// a look-up table emulates, together with adapters for running it.
package oracle

import (
	"context"
	"fmt"

	"github.com/banshee-data/ilut/internal/lut"
)

// Reference date of every evaluation. Samples are computed at perihelion
// and the Earth-Sun distance is corrected at query time.
const (
	ReferenceMonth = 1
	ReferenceDay   = 4
)

// Request is a single oracle evaluation.
type Request struct {
	Sensor         lut.Sensor         `json:"sensor"`
	Band           string             `json:"band"`
	Wavelength     float64            `json:"wavelength_um"`
	AerosolProfile lut.AerosolProfile `json:"aerosol_profile"`
	ViewZenith     int                `json:"view_zenith"`
	SolarZenith    float64            `json:"solar_zenith"`
	WaterVapour    float64            `json:"water_vapour"`
	Ozone          float64            `json:"ozone"`
	AOT            float64            `json:"aot"`
	Altitude       float64            `json:"altitude"`
	Month          int                `json:"month"`
	Day            int                `json:"day"`
}

// NewRequest builds the request for key under cfg at the reference date.
func NewRequest(cfg lut.Config, band lut.Band, p lut.ParameterPoint) Request {
	return Request{
		Sensor:         cfg.Sensor,
		Band:           band.Name,
		Wavelength:     band.Wavelength,
		AerosolProfile: cfg.AerosolProfile,
		ViewZenith:     cfg.ViewZenith,
		SolarZenith:    p.SolarZenith,
		WaterVapour:    p.WaterVapour,
		Ozone:          p.Ozone,
		AOT:            p.AOT,
		Altitude:       p.Altitude,
		Month:          ReferenceMonth,
		Day:            ReferenceDay,
	}
}

// Point returns the parameter point of the request.
func (r Request) Point() lut.ParameterPoint {
	return lut.ParameterPoint{
		SolarZenith: r.SolarZenith,
		WaterVapour: r.WaterVapour,
		Ozone:       r.Ozone,
		AOT:         r.AOT,
		Altitude:    r.Altitude,
	}
}

// Key returns the sample key of the request.
func (r Request) Key() lut.SampleKey {
	return lut.SampleKey{Band: r.Band, Point: r.Point()}
}

// Oracle evaluates the radiative-transfer model for one request. Calls are
// slow, may fail, and must honour ctx cancellation. Implementations must be
// safe for concurrent use.
type Oracle interface {
	Evaluate(ctx context.Context, req Request) (lut.Outputs, error)
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, req Request) (lut.Outputs, error)

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, req Request) (lut.Outputs, error) {
	return f(ctx, req)
}

// response is the wire format returned by external oracles.
type response struct {
	lut.Outputs
	Error string `json:"error,omitempty"`
}

func (r response) result() (lut.Outputs, error) {
	if r.Error != "" {
		return lut.Outputs{}, fmt.Errorf("oracle: %s", r.Error)
	}
	return r.Outputs, nil
}
