package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/edp1096/toy-mcusim/pkg/scope"
	"github.com/edp1096/toy-mcusim/pkg/util"
)

// splitNames returns the sorted V(...) and I(...) keys of results.
func splitNames(results map[string][]float64) (voltageNames, currentNames []string) {
	for name := range results {
		if strings.HasPrefix(name, "V(") {
			voltageNames = append(voltageNames, name)
		} else if strings.HasPrefix(name, "I(") {
			currentNames = append(currentNames, name)
		}
	}
	sort.Strings(voltageNames)
	sort.Strings(currentNames)
	return voltageNames, currentNames
}

func unitOf(name string) string {
	if strings.HasPrefix(name, "I(") {
		return "A"
	}
	return "V"
}

func printValues(w io.Writer, results map[string][]float64, names []string, i int) {
	for _, name := range names {
		fmt.Fprintf(w, "%s=%s  ", name, util.FormatValueFactor(results[name][i], unitOf(name)))
	}
}

func printResults(w io.Writer, results map[string][]float64, sweepNames []string) {
	voltageNames, currentNames := splitNames(results)

	// DC Sweep
	if sweep1, isDC := results["SWEEP1"]; isDC {
		fmt.Fprintf(w, "\nDC Sweep Analysis Results (%d points):\n", len(sweep1))
		fmt.Fprintln(w, "Sweep Values    Node Voltages        Branch Currents")
		fmt.Fprintln(w, "------------------------------------------------")

		sweep2, hasNested := results["SWEEP2"]
		for i := range sweep1 {
			fmt.Fprintf(w, "%s=%-9s  ", sweepNames[0], util.FormatValueFactor(sweep1[i], ""))
			if hasNested {
				fmt.Fprintf(w, "%s=%-9s  ", sweepNames[1], util.FormatValueFactor(sweep2[i], ""))
			}
			printValues(w, results, voltageNames, i)
			printValues(w, results, currentNames, i)
			fmt.Fprintln(w)
		}
		return
	}

	// Operating point
	times, isTran := results["TIME"]
	if !isTran {
		fmt.Fprintln(w, "\nNode Voltages:")
		for _, name := range voltageNames {
			fmt.Fprintf(w, "%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
		}
		fmt.Fprintln(w, "\nBranch Currents:")
		for _, name := range currentNames {
			fmt.Fprintf(w, "%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
		}
		return
	}

	// Transient
	fmt.Fprintf(w, "\nTransient Analysis Results (%d time points):\n", len(times))
	fmt.Fprintln(w, "Time        Node Voltages        Branch Currents")
	fmt.Fprintln(w, "------------------------------------------------")
	for i, t := range times {
		fmt.Fprintf(w, "%11s  ", util.FormatValueFactor(t, "s"))
		printValues(w, results, voltageNames, i)
		printValues(w, results, currentNames, i)
		fmt.Fprintln(w)
	}
}

// recordResults replays analysis results into a recorder so they can be
// exported like a live capture. axis is TIME or SWEEP1; a sweep keeps its
// name as the first CSV column.
func recordResults(results map[string][]float64, axis string) *scope.Recorder {
	var opts []scope.Option
	if axis != "TIME" {
		opts = append(opts, scope.WithAxis(axis))
	}
	r := scope.NewRecorder(opts...)
	voltageNames, currentNames := splitNames(results)

	idx := 0
	for _, name := range append(voltageNames, currentNames...) {
		series := results[name]
		r.WatchFunc(name, unitOf(name), func() float64 { return series[idx] })
	}
	for i, x := range results[axis] {
		idx = i
		r.Sample(x)
	}
	return r
}

type exportOptions struct {
	CSV   string
	Plot  string
	Title string
}

func (e exportOptions) write(r *scope.Recorder) error {
	if e.CSV != "" {
		f, err := os.Create(e.CSV)
		if err != nil {
			return errors.Wrap(err, "creating csv")
		}
		if err := r.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(err, "closing csv")
		}
	}
	if e.Plot != "" {
		if err := r.SavePlot(e.Plot, e.Title); err != nil {
			return err
		}
	}
	return nil
}
