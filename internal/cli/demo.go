package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/edp1096/toy-mcusim/internal/sketches"
	"github.com/edp1096/toy-mcusim/pkg/chip"
	"github.com/edp1096/toy-mcusim/pkg/circuit"
	"github.com/edp1096/toy-mcusim/pkg/device"
	"github.com/edp1096/toy-mcusim/pkg/firmware"
	"github.com/edp1096/toy-mcusim/pkg/scope"
	"github.com/edp1096/toy-mcusim/pkg/serial"
	"github.com/edp1096/toy-mcusim/pkg/util"
)

// maxFailedTicks stops a demo whose ticks keep failing; time does not advance
// on a failed tick, so --duration alone would never end it.
const maxFailedTicks = 100

// failureGuard counts consecutive failed ticks and cancels the run at limit.
type failureGuard struct {
	limit  int
	count  int
	last   *circuit.SimulationError
	cancel context.CancelFunc
	report func(*circuit.SimulationError)
}

func (g *failureGuard) committed() { g.count = 0 }

func (g *failureGuard) failed(se *circuit.SimulationError) {
	g.count++
	g.last = se
	if g.report != nil {
		g.report(se)
	}
	if g.count >= g.limit {
		g.cancel()
	}
}

func (g *failureGuard) err() error {
	if g.count < g.limit {
		return nil
	}
	return errors.Wrapf(g.last, "%d consecutive ticks failed", g.count)
}

type DemoOptions struct {
	*RootOptions
	exportOptions
	Sketch   string
	Pin      int
	Load     float64
	Tick     time.Duration
	Duration time.Duration
	Every    int
}

func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a sketch on an ATmega328P and print one pin",
		Long: `Place an ATmega328P with a resistor load on one pin, run a built-in
sketch and print "time :: voltage" of that pin as the simulation advances.

Example:
  mcusim demo
  mcusim demo --sketch fade --pin 9 --every 10 --plot fade.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Sketch, "sketch", "blink", "built-in sketch to load")
	cmd.Flags().IntVar(&opts.Pin, "pin", sketches.LED, "pin to watch")
	cmd.Flags().Float64Var(&opts.Load, "load", 1000, "load resistance on the watched pin (ohm)")
	cmd.Flags().DurationVar(&opts.Tick, "tick", 100*time.Microsecond, "simulated time per tick")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 4*time.Second, "simulated time to run (0 = until interrupted)")
	cmd.Flags().IntVar(&opts.Every, "every", 1000, "print every n ticks")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "write the watched pin as CSV")
	cmd.Flags().StringVar(&opts.Plot, "plot", "", "plot the watched pin (.png, .svg, .pdf)")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *DemoOptions) error {
	program, ok := sketches.Lookup(opts.Sketch)
	if !ok {
		return fmt.Errorf("unknown sketch %q, have %v", opts.Sketch, sketches.Names())
	}
	if opts.Every < 1 {
		return fmt.Errorf("--every must be at least 1, got %d", opts.Every)
	}
	out := cmd.OutOrStdout()

	sim := opts.Config.Simulation
	sim.TickInterval = opts.Tick
	ckt := circuit.New("demo", circuit.WithConfig(sim), circuit.WithLogger(opts.Logger))
	defer ckt.Destroy()

	uart := serial.NewUART(
		serial.WithConfig(opts.Config.Serial),
		serial.WithLogger(opts.Logger),
		serial.OnArduinoSend(func(b byte) { fmt.Fprintf(cmd.ErrOrStderr(), "%c", b) }),
	)
	engine := firmware.NewSketch(program,
		firmware.WithCosts(opts.Config.Chip.CallCost, opts.Config.Chip.LoopCost),
		firmware.WithLogger(opts.Logger),
	)
	mcu, err := chip.NewATmega328P("U1", engine,
		chip.WithConfig(opts.Config.Chip),
		chip.WithLogger(opts.Logger),
		chip.WithUART(uart),
	)
	if err != nil {
		engine.Close()
		return err
	}
	mcu = circuit.Create(ckt, mcu)
	defer mcu.Close()

	if opts.Pin < 0 || opts.Pin >= mcu.LeadCount() || mcu.Pin(opts.Pin).Control() {
		return fmt.Errorf("pin %d is not an IO pin", opts.Pin)
	}
	load := circuit.Create(ckt, device.NewResistor("RL", opts.Load))
	gnd := circuit.Create(ckt, device.NewGround("GND"))
	if err := ckt.Connect(mcu.Lead(opts.Pin), load.LeadIn()); err != nil {
		return err
	}
	if err := ckt.Connect(load.LeadOut(), gnd.Lead()); err != nil {
		return err
	}
	gndPin, _ := mcu.LeadByName("GND")
	if err := ckt.Connect(gndPin, gnd.Lead()); err != nil {
		return err
	}

	rec := scope.NewRecorder(scope.WithDecimation(opts.Every))
	pinName := mcu.Pin(opts.Pin).Name
	rec.Watch(pinName, scope.Pin(mcu, opts.Pin))
	rec.WatchFunc("duty("+pinName+")", "", func() float64 { return mcu.Pin(opts.Pin).DutyCycle })

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.Logger.Info("demo started", "sketch", opts.Sketch, "pin", pinName, "run", ckt.RunID())

	guard := &failureGuard{
		limit:  maxFailedTicks,
		cancel: cancel,
		report: func(se *circuit.SimulationError) { fmt.Fprintln(cmd.ErrOrStderr(), se.Code) },
	}
	limit := opts.Duration.Seconds()
	err = ckt.StartSimulation(ctx, func(c *circuit.Circuit) {
		guard.committed()
		// the committed solution belongs to the time before the advance
		t := c.GetTime() - c.GetTimeStep()
		if (c.GetTick()-1)%uint64(opts.Every) == 0 {
			fmt.Fprintf(out, "%s :: %s\n", util.FormatSimTime(t), util.FormatValueFactor(mcu.Pin(opts.Pin).Voltage(), "V"))
		}
		rec.OnTick(c)
		if limit > 0 && c.GetTime() >= limit {
			cancel()
		}
	}, guard.failed)
	if gerr := guard.err(); gerr != nil {
		return gerr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	opts.Title = fmt.Sprintf("%s on %s", opts.Sketch, pinName)
	return opts.write(rec)
}
