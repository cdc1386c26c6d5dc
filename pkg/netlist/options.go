package netlist

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edp1096/toy-mcusim/pkg/config"
)

// ApplyOptions folds .options onto cfg. Unknown keys are returned so the
// caller can warn about them.
func ApplyOptions(cfg *config.Simulation, options map[string]string) (unknown []string, err error) {
	for key, raw := range options {
		switch key {
		case "tick", "tstep":
			v, err := ParseValue(raw)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("option %s: invalid tick %q", key, raw)
			}
			cfg.TickInterval = time.Duration(math.Round(v * float64(time.Second)))
			if cfg.TickInterval <= 0 {
				return nil, fmt.Errorf("option %s: tick %q below 1ns", key, raw)
			}

		case "solver":
			cfg.Solver = strings.ToLower(raw)

		case "gmin":
			if cfg.Gmin, err = ParseValue(raw); err != nil {
				return nil, fmt.Errorf("option gmin: %v", err)
			}

		case "reltol", "tolerance":
			if cfg.Tolerance, err = ParseValue(raw); err != nil {
				return nil, fmt.Errorf("option %s: %v", key, err)
			}

		case "itl1", "max_iterations":
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("option %s: %v", key, err)
			}
			cfg.MaxIterations = n

		default:
			unknown = append(unknown, key)
		}
	}
	return unknown, nil
}
