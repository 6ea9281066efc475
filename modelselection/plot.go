package modelselection

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// cvPoints pairs mean scores with ±std error bars.
type cvPoints struct {
	plotter.XYs
	plotter.YErrors
}

// PlotCVScores renders the mean cross-validation score of each candidate with
// ±1 std error bars as a PNG. Failed candidates are omitted.
func (r *SearchResult) PlotCVScores(w io.Writer) error {
	if len(r.CVResults) == 0 {
		return errors.NewValueError("PlotCVScores", "no candidates to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Grid search (%d-fold CV)", r.NSplits)
	p.X.Label.Text = "candidate"
	p.Y.Label.Text = r.Scoring

	pts := cvPoints{}
	labels := make([]string, len(r.CVResults))
	for i, res := range r.CVResults {
		labels[i] = fmt.Sprint(i)
		if res.Failed || math.IsInf(res.MeanScore, 0) {
			continue
		}
		pts.XYs = append(pts.XYs, plotter.XY{X: float64(i), Y: res.MeanScore})
		pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{res.StdScore, res.StdScore})
	}
	if len(pts.XYs) == 0 {
		return errors.NewValueError("PlotCVScores", "every candidate failed")
	}
	p.NominalX(labels...)

	scatter, err := plotter.NewScatter(pts.XYs)
	if err != nil {
		return errors.Wrap(err, "create scatter")
	}
	scatter.Radius = vg.Points(3)

	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return errors.Wrap(err, "create error bars")
	}
	bars.Width = vg.Points(1)

	p.Add(scatter, bars, plotter.NewGrid())

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "render plot")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write plot")
	}
	return nil
}
