package oracle

import (
	"fmt"
	"net/http"

	"github.com/banshee-data/ilut/internal/config"
	"github.com/banshee-data/ilut/internal/httputil"
	"github.com/banshee-data/ilut/internal/lut"
)

// FromConfig returns the oracle selected by c: an external command, an
// HTTP service, or the synthetic model when c asks for it by name. A
// configuration that selects no oracle is a ConfigurationError.
func FromConfig(c *config.BuildConfig) (Oracle, error) {
	switch kind := c.GetOracleKind(); kind {
	case config.OracleCommand:
		name, args := c.GetOracleCommand()
		return NewCommand(name, args...), nil
	case config.OracleHTTP:
		// Per-call deadlines come from the orchestrator's context.
		return NewHTTP(c.GetOracleURL(), httputil.NewStandardClient(&http.Client{})), nil
	case config.OracleSynthetic:
		return Synthetic{}, nil
	case "":
		return nil, &lut.ConfigurationError{
			Field:  "oracle",
			Reason: `no oracle configured; set oracle_command, oracle_url or "oracle": "synthetic"`,
		}
	default:
		return nil, fmt.Errorf("unknown oracle kind %q", kind)
	}
}
