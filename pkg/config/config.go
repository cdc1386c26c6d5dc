// Package config loads simulator settings from YAML.
//
// Every field has a default, so an empty document (or no file at all)
// yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-mcusim/internal/consts"
)

// Config is the root of the YAML document.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Chip       Chip       `yaml:"chip"`
	Serial     Serial     `yaml:"serial"`
	Log        Log        `yaml:"log"`
}

// Simulation controls the tick loop and the solver.
type Simulation struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	MaxIterations int           `yaml:"max_iterations"`
	Tolerance     float64       `yaml:"tolerance"`
	Gmin          float64       `yaml:"gmin"`
	Solver        string        `yaml:"solver"` // dense | gonum | sparse
}

// Chip holds the electrical and timing model of microcontroller pins.
type Chip struct {
	SupplyVoltage    float64       `yaml:"supply_voltage"`
	PWMFrequency     float64       `yaml:"pwm_frequency"`
	ADCResolution    int           `yaml:"adc_resolution"`
	PWMResolution    int           `yaml:"pwm_resolution"`
	PullupResistance float64       `yaml:"pullup_resistance"`
	CallCost         time.Duration `yaml:"call_cost"`
	LoopCost         time.Duration `yaml:"loop_cost"`
}

// Serial sizes the UART ring buffers and bounds the baud rate.
type Serial struct {
	BufferSize int `yaml:"buffer_size"`
	MinBaud    int `yaml:"min_baud"`
	MaxBaud    int `yaml:"max_baud"`
}

// Log selects the slog level used by the CLI.
type Log struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

var validSolvers = []string{"dense", "gonum", "sparse"}

func Default() Config {
	return Config{
		Simulation: Simulation{
			TickInterval:  time.Microsecond,
			MaxIterations: 100,
			Tolerance:     1e-6,
			Gmin:          1e-12,
			Solver:        "dense",
		},
		Chip: Chip{
			SupplyVoltage:    consts.SupplyVoltage,
			PWMFrequency:     consts.PWMFrequency,
			ADCResolution:    consts.ADCResolution,
			PWMResolution:    consts.PWMResolution,
			PullupResistance: consts.PullupResistance,
			CallCost:         time.Microsecond,
			LoopCost:         time.Microsecond,
		},
		Serial: Serial{
			BufferSize: consts.SerialBuffer,
			MinBaud:    consts.MinBaud,
			MaxBaud:    consts.MaxBaud,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	s := c.Simulation
	if s.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive, got %s", s.TickInterval)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("simulation.max_iterations must be at least 1, got %d", s.MaxIterations)
	}
	if s.Tolerance <= 0 {
		return fmt.Errorf("simulation.tolerance must be positive, got %g", s.Tolerance)
	}
	if s.Gmin < 0 {
		return fmt.Errorf("simulation.gmin must not be negative, got %g", s.Gmin)
	}
	if !isValidSolver(s.Solver) {
		return fmt.Errorf("invalid solver %q: must be one of %v", s.Solver, validSolvers)
	}

	ch := c.Chip
	if ch.SupplyVoltage <= 0 {
		return fmt.Errorf("chip.supply_voltage must be positive, got %g", ch.SupplyVoltage)
	}
	if ch.PWMFrequency <= 0 {
		return fmt.Errorf("chip.pwm_frequency must be positive, got %g", ch.PWMFrequency)
	}
	if ch.ADCResolution < 1 || ch.PWMResolution < 1 {
		return fmt.Errorf("chip resolutions must be positive (adc=%d, pwm=%d)", ch.ADCResolution, ch.PWMResolution)
	}
	if ch.PullupResistance <= 0 {
		return fmt.Errorf("chip.pullup_resistance must be positive, got %g", ch.PullupResistance)
	}
	if ch.CallCost < 0 || ch.LoopCost <= 0 {
		return fmt.Errorf("chip costs invalid (call=%s, loop=%s)", ch.CallCost, ch.LoopCost)
	}

	se := c.Serial
	if se.BufferSize < 1 {
		return fmt.Errorf("serial.buffer_size must be at least 1, got %d", se.BufferSize)
	}
	if se.MinBaud < 1 || se.MaxBaud < se.MinBaud {
		return fmt.Errorf("serial baud range invalid [%d, %d]", se.MinBaud, se.MaxBaud)
	}

	return nil
}

func isValidSolver(name string) bool {
	for _, s := range validSolvers {
		if s == name {
			return true
		}
	}
	return false
}
