package modelselection

import (
	"math/rand/v2"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/preprocessing"
)

// fitCount counts meanRegressor fits across the package tests.
var fitCount atomic.Int64

// meanRegressor predicts the training mean plus Offset. Mode "fail" makes Fit
// return an error and mode "panic" makes it panic.
type meanRegressor struct {
	model.BaseEstimator
	Offset float64
	Mode   string
	mean   float64
}

func (m *meanRegressor) Fit(X, y mat.Matrix) error {
	fitCount.Add(1)
	switch m.Mode {
	case "fail":
		return errors.New("synthetic fit failure")
	case "panic":
		panic("synthetic panic")
	}
	r, _ := y.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += y.At(i, 0)
	}
	m.mean = sum / float64(r)
	_, nf := X.Dims()
	m.SetFitted(nf)
	return nil
}

func (m *meanRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.mean+m.Offset)
	}
	return out, nil
}

func (m *meanRegressor) Score(X, y mat.Matrix) (float64, error) {
	return 0, nil
}

func (m *meanRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{"offset": m.Offset, "mode": m.Mode}
}

func (m *meanRegressor) SetParams(params map[string]interface{}) error {
	next := *m
	for k, v := range params {
		var err error
		switch k {
		case "offset":
			next.Offset, err = model.ToFloat(k, v)
		case "mode":
			next.Mode, err = model.ToString(k, v)
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
		if err != nil {
			return err
		}
	}
	*m = next
	return nil
}

func (m *meanRegressor) Clone() model.Component {
	return &meanRegressor{Offset: m.Offset, Mode: m.Mode}
}

func newMeanPipeline() *pipeline.Pipeline {
	p, err := pipeline.New(
		pipeline.Step{Name: "standard_scaler", Estimator: preprocessing.NewStandardScalerDefault()},
		pipeline.Step{Name: "regressor", Estimator: &meanRegressor{}},
	)
	if err != nil {
		panic(err)
	}
	return p
}

func makeRegression(n int) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(10, 20))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := r.Float64()*4, r.Float64()*4
		X.SetRow(i, []float64{a, b})
		y.Set(i, 0, a*a-b+r.NormFloat64()*0.05)
	}
	return X, y
}
