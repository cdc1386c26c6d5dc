package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/edp1096/toy-mcusim/internal/sketches"
	"github.com/edp1096/toy-mcusim/pkg/analysis"
	"github.com/edp1096/toy-mcusim/pkg/chip"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
	"github.com/edp1096/toy-mcusim/pkg/netlist"
	"github.com/edp1096/toy-mcusim/pkg/serial"
)

type RunOptions struct {
	*RootOptions
	exportOptions
	SettleLimit int
	Describe    bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <netlist>",
		Short: "Run the analysis named in a netlist",
		Long: `Parse a SPICE-style netlist and run its .op, .tran or .dc analysis.

Chips are placed with U lines and load a built-in sketch:
  U1 atmega328p sketch=blink D13=led GND=0

Example:
  mcusim run examples/divider/divider.cir
  mcusim run --csv out.csv --plot out.png blink.cir`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetlist(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.CSV, "csv", "", "write results as CSV")
	cmd.Flags().StringVar(&opts.Plot, "plot", "", "plot results (.png, .svg, .pdf)")
	cmd.Flags().IntVar(&opts.SettleLimit, "settle", 0, "tick limit for .op and .dc settling (0 = default)")
	cmd.Flags().BoolVar(&opts.Describe, "describe", false, "print the parsed elements before running")

	return cmd
}

func runNetlist(cmd *cobra.Command, opts *RunOptions, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading netlist")
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	out := cmd.OutOrStdout()
	if opts.Describe {
		netlist.Describe(out, data)
	}

	sim := opts.Config.Simulation
	unknown, err := netlist.ApplyOptions(&sim, data.Options)
	if err != nil {
		return err
	}
	for _, key := range unknown {
		opts.Logger.Warn("ignoring option", "key", key)
	}

	ckt := circuit.New(data.Title, circuit.WithConfig(sim), circuit.WithLogger(opts.Logger))
	defer ckt.Destroy()

	design, err := netlist.Build(data, ckt, netlist.BuildOptions{
		Sketches:    sketches.Lookup,
		ChipOptions: []chip.Option{chip.WithConfig(opts.Config.Chip), chip.WithLogger(opts.Logger)},
		SketchOptions: []firmware.SketchOption{
			firmware.WithCosts(opts.Config.Chip.CallCost, opts.Config.Chip.LoopCost),
			firmware.WithLogger(opts.Logger),
		},
		NewUART: func(name string) *serial.UART {
			return serial.NewUART(
				serial.WithConfig(opts.Config.Serial),
				serial.WithLogger(opts.Logger.With("chip", name)),
				serial.OnArduinoSend(func(b byte) { opts.Logger.Debug("serial", "chip", name, "byte", b) }),
			)
		},
	})
	if err != nil {
		return err
	}
	defer design.Close()

	analyzer, axis, sweepNames, err := newAnalyzer(data, opts.SettleLimit)
	if err != nil {
		return err
	}

	opts.Logger.Info("running analysis", "netlist", path, "analysis", data.Analysis, "run", ckt.RunID())
	if err := analyzer.Setup(ckt); err != nil {
		return errors.Wrap(err, "analysis setup")
	}
	if err := analyzer.Execute(); err != nil {
		return errors.Wrap(err, "analysis")
	}

	results := analyzer.GetResults()
	fmt.Fprintf(out, "Circuit: %s\n", data.Title)
	fmt.Fprintf(out, "Analysis: %s\n", data.Analysis)
	printResults(out, results, sweepNames)

	if axis == "" {
		return nil
	}
	opts.Title = data.Title
	return opts.write(recordResults(results, axis))
}

// newAnalyzer maps the netlist's analysis card. axis is the independent
// variable of multi-point results, empty for an operating point.
func newAnalyzer(data *netlist.NetlistData, settleLimit int) (a analysis.Analysis, axis string, sweepNames []string, err error) {
	switch data.Analysis {
	case netlist.AnalysisOP:
		op := analysis.NewOP()
		if settleLimit > 0 {
			op.SetSettleLimit(settleLimit)
		}
		return op, "", nil, nil

	case netlist.AnalysisTRAN:
		p := data.TranParam
		return analysis.NewTransient(p.TStart, p.TStop, p.TStep), "TIME", nil, nil

	case netlist.AnalysisDC:
		p := data.DCParam
		names := []string{p.Source1}
		starts, stops, incs := []float64{p.Start1}, []float64{p.Stop1}, []float64{p.Increment1}
		if p.Source2 != "" {
			names = append(names, p.Source2)
			starts = append(starts, p.Start2)
			stops = append(stops, p.Stop2)
			incs = append(incs, p.Increment2)
		}
		dc, err := analysis.NewDCSweep(names, starts, stops, incs)
		if err != nil {
			return nil, "", nil, err
		}
		if settleLimit > 0 {
			dc.SetSettleLimit(settleLimit)
		}
		return dc, "SWEEP1", names, nil
	}
	return nil, "", nil, errors.New("netlist has no analysis card (.op, .tran or .dc)")
}
