package netlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/chip"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
	"github.com/edp1096/toy-mcusim/pkg/serial"
)

// SketchLookup resolves the sketch= parameter of a chip line.
type SketchLookup func(name string) (firmware.Program, bool)

type BuildOptions struct {
	Sketches      SketchLookup
	ChipOptions   []chip.Option
	SketchOptions []firmware.SketchOption
	// NewUART, if set, gives every chip its own serial peripheral.
	NewUART func(chipName string) *serial.UART
}

// Design is a netlist instantiated into a circuit.
type Design struct {
	Circuit *circuit.Circuit
	Devices map[string]device.Device
	Chips   map[string]*chip.Chip
	Ground  *device.Ground
}

// Close stops the firmware of every chip.
func (d *Design) Close() error {
	var first error
	for _, c := range d.Chips {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func isGround(node string) bool {
	return node == "0" || strings.EqualFold(node, "gnd")
}

type netBuilder struct {
	ckt    *circuit.Circuit
	design *Design
	first  map[string]device.Lead
}

// attach puts lead on the named net. The first lead of a net labels it.
func (b *netBuilder) attach(node string, lead device.Lead) error {
	if isGround(node) {
		if b.design.Ground == nil {
			b.design.Ground = circuit.Create(b.ckt, device.NewGround("GND"))
		}
		return b.ckt.Connect(lead, b.design.Ground.Lead())
	}
	if first, ok := b.first[node]; ok {
		return b.ckt.Connect(first, lead)
	}
	b.first[node] = lead
	b.ckt.Label(node, lead)
	return nil
}

// Build creates every element of data in ckt and wires the named nets.
func Build(data *NetlistData, ckt *circuit.Circuit, opts BuildOptions) (*Design, error) {
	design := &Design{
		Circuit: ckt,
		Devices: make(map[string]device.Device),
		Chips:   make(map[string]*chip.Chip),
	}
	b := &netBuilder{ckt: ckt, design: design, first: make(map[string]device.Lead)}

	fail := func(err error) (*Design, error) {
		design.Close()
		return nil, err
	}

	for _, elem := range data.Elements {
		if _, dup := design.Devices[elem.Name]; dup {
			return fail(errors.Errorf("duplicate element %s", elem.Name))
		}

		dev, err := CreateDevice(elem, data.Models, opts)
		if err != nil {
			return fail(errors.Wrapf(err, "element %s", elem.Name))
		}
		dev = circuit.Create(ckt, dev)
		design.Devices[elem.Name] = dev

		leads, err := leadsOf(dev, elem)
		if err != nil {
			if c, ok := dev.(*chip.Chip); ok {
				c.Close()
			}
			return fail(errors.Wrapf(err, "element %s", elem.Name))
		}
		if c, ok := dev.(*chip.Chip); ok {
			design.Chips[elem.Name] = c
		}
		for i, lead := range leads {
			if err := b.attach(elem.Nodes[i], lead); err != nil {
				return fail(errors.Wrapf(err, "element %s", elem.Name))
			}
		}
	}

	return design, nil
}

// leadsOf maps the element's node list onto device leads.
func leadsOf(dev device.Device, elem Element) ([]device.Lead, error) {
	if c, ok := dev.(*chip.Chip); ok {
		leads := make([]device.Lead, len(elem.Pins))
		for i, pin := range elem.Pins {
			lead, ok := c.LeadByName(pin)
			if !ok {
				return nil, errors.Errorf("no pin %s on %s", pin, c.Model())
			}
			leads[i] = lead
		}
		return leads, nil
	}

	// SPICE order n+ n-; a voltage source's positive lead is lead 1
	if v, ok := dev.(*device.VoltageSource); ok {
		return []device.Lead{v.LeadPos(), v.LeadNeg()}, nil
	}
	leads := make([]device.Lead, len(elem.Nodes))
	for i := range elem.Nodes {
		leads[i] = device.LeadOf(dev, i)
	}
	return leads, nil
}

func CreateDevice(elem Element, models map[string]device.ModelParam, opts BuildOptions) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Value), nil

	case "L":
		return device.NewInductor(elem.Name, elem.Value), nil

	case "C":
		c := device.NewCapacitor(elem.Name, elem.Value)
		if ic, ok := elem.Params["ic"]; ok {
			v, err := ParseValue(ic)
			if err != nil {
				return nil, fmt.Errorf("invalid IC: %v", err)
			}
			c.Initial = v
		}
		return c, nil

	case "W":
		return device.NewWire(elem.Name), nil

	case "D":
		diode := device.NewDiode(elem.Name)
		if modelName, ok := elem.Params["model"]; ok {
			model, exists := models[modelName]
			if !exists {
				return nil, fmt.Errorf("undefined model %s", modelName)
			}
			diode.SetModelParameters(model.Params)
		}
		return diode, nil

	case "V":
		switch elem.Params["type"] {
		case "dc":
			return device.NewDCVoltageSource(elem.Name, elem.Value), nil

		case "sin":
			offset, amplitude, freq, phase, err := parseSinParams(elem.Params["sin"])
			if err != nil {
				return nil, err
			}
			return device.NewSinVoltageSource(elem.Name, offset, amplitude, freq, phase), nil

		case "pulse":
			v1, v2, delay, rise, fall, pWidth, period, err := parsePulseParams(elem.Params["pulse"])
			if err != nil {
				return nil, err
			}
			return device.NewPulseVoltageSource(elem.Name, v1, v2, delay, rise, fall, pWidth, period), nil

		case "square":
			offset, amplitude, freq, duty, err := parseSquareParams(elem.Params["square"])
			if err != nil {
				return nil, err
			}
			return device.NewSquareVoltageSource(elem.Name, offset, amplitude, freq, duty), nil

		case "pwl":
			times, values, err := parsePWLParams(elem.Params["pwl"])
			if err != nil {
				return nil, err
			}
			return device.NewPWLVoltageSource(elem.Name, times, values), nil
		}

	case "I":
		switch elem.Params["type"] {
		case "dc":
			return device.NewDCCurrentSource(elem.Name, elem.Value), nil
		case "sin":
			offset, amplitude, freq, phase, err := parseSinParams(elem.Params["sin"])
			if err != nil {
				return nil, err
			}
			return device.NewSinCurrentSource(elem.Name, offset, amplitude, freq, phase), nil
		case "pulse":
			i1, i2, delay, rise, fall, pWidth, period, err := parsePulseParams(elem.Params["pulse"])
			if err != nil {
				return nil, err
			}
			return device.NewPulseCurrentSource(elem.Name, i1, i2, delay, rise, fall, pWidth, period), nil
		}

	case "U":
		return createChip(elem, opts)
	}
	return nil, fmt.Errorf("unsupported device: %s %s", elem.Type, elem.Params["type"])
}

func createChip(elem Element, opts BuildOptions) (device.Device, error) {
	program := firmware.Program{}
	if name, ok := elem.Params["sketch"]; ok {
		if opts.Sketches == nil {
			return nil, fmt.Errorf("no sketches available for sketch=%s", name)
		}
		p, found := opts.Sketches(name)
		if !found {
			return nil, fmt.Errorf("unknown sketch %s", name)
		}
		program = p
	}
	engine := firmware.NewSketch(program, opts.SketchOptions...)

	chipOpts := opts.ChipOptions
	if opts.NewUART != nil {
		chipOpts = append(chipOpts[:len(chipOpts):len(chipOpts)], chip.WithUART(opts.NewUART(elem.Name)))
	}

	switch model := elem.Params["model"]; model {
	case "atmega328p", "uno":
		c, err := chip.NewATmega328P(elem.Name, engine, chipOpts...)
		if err != nil {
			engine.Close()
			return nil, err
		}
		return c, nil
	default:
		engine.Close()
		return nil, fmt.Errorf("unknown chip model %s", model)
	}
}

// Describe writes a one-line summary per element, for the CLI.
func Describe(w io.Writer, data *NetlistData) {
	fmt.Fprintf(w, "%s\n", data.Title)
	for _, e := range data.Elements {
		switch e.Type {
		case "U":
			pins := make([]string, len(e.Pins))
			for i, p := range e.Pins {
				pins[i] = p + "=" + e.Nodes[i]
			}
			fmt.Fprintf(w, "  %-6s %s sketch=%s %s\n", e.Name, e.Params["model"], e.Params["sketch"], strings.Join(pins, " "))
		default:
			fmt.Fprintf(w, "  %-6s %s\n", e.Name, strings.Join(e.Nodes, " "))
		}
	}
}
