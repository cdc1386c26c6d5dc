package scope

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// Plot draws the voltage channels, or the current channels when no voltage
// is watched, against the sample axis.
func (r *Recorder) Plot(title string) (*plot.Plot, error) {
	if len(r.frames) == 0 {
		return nil, errors.New("nothing recorded")
	}

	unit := "V"
	if !r.hasUnit(unit) {
		unit = "A"
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = r.axis
	if r.axis == "time" {
		p.X.Label.Text = "time (s)"
	}
	p.Y.Label.Text = unit
	p.Add(plotter.NewGrid())

	var lines []any
	for col, ch := range r.channels {
		if ch.unit != unit {
			continue
		}
		xys := make(plotter.XYs, len(r.frames))
		for i, f := range r.frames {
			xys[i].X = f.Time
			if col < len(f.Values) {
				xys[i].Y = f.Values[col]
			}
		}
		lines = append(lines, ch.name, xys)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, errors.Wrap(err, "adding lines")
	}
	return p, nil
}

// SavePlot renders the plot to path; the extension picks the format (png,
// svg, pdf, ...).
func (r *Recorder) SavePlot(path, title string) error {
	p, err := r.Plot(title)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.Save(plotWidth, plotHeight, path), "saving %s", path)
}

// WritePlot renders the plot in format to w.
func (r *Recorder) WritePlot(w io.Writer, format, title string) error {
	p, err := r.Plot(title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, strings.TrimPrefix(format, "."))
	if err != nil {
		return errors.Wrapf(err, "format %s", format)
	}
	_, err = wt.WriteTo(w)
	return err
}

// FormatOf is the plot format implied by a file name.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func (r *Recorder) hasUnit(unit string) bool {
	for _, ch := range r.channels {
		if ch.unit == unit {
			return true
		}
	}
	return false
}
