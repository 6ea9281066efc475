package preprocessing

import (
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

func init() {
	gob.Register(&StandardScaler{})
}

// StandardScaler is the "standard_scaler" pipeline stage: (x - mean) / std per
// feature, with the population standard deviation. NaN cells are skipped when
// fitting and stay NaN after Transform.
type StandardScaler struct {
	model.BaseEstimator

	Mean  []float64 // zero when WithMean is false
	Scale []float64 // one when WithStd is false or the column is constant

	WithMean bool
	WithStd  bool
}

// minScale 未満の標準偏差は定数列として扱う
const minScale = 1e-8

func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault centers and scales, as scikit-learn does by default.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, 0, r)
	for j := range c {
		col = col[:0]
		for i := range r {
			if v := X.At(i, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		var mean, variance float64
		if len(col) > 0 {
			mean, variance = stat.PopMeanVariance(col, nil)
		}
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if std := math.Sqrt(variance); s.WithStd && std >= minScale {
			s.Scale[j] = std
		}
	}

	s.SetFitted(c)
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	if _, c := X.Dims(); c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	var out mat.Dense
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return &out, nil
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams はスケーラーのパラメータを設定する。
// 未知のパラメータ名や型の合わないパラメータがあれば何も変更せずにエラーを返す。
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	withMean, withStd := s.WithMean, s.WithStd
	for name, v := range params {
		var err error
		switch name {
		case "with_mean":
			withMean, err = model.ToBool(name, v)
		case "with_std":
			withStd, err = model.ToBool(name, v)
		default:
			return errors.NewValidationError(name, "unknown parameter for StandardScaler", v)
		}
		if err != nil {
			return err
		}
	}
	s.WithMean, s.WithStd = withMean, withStd
	return nil
}

// Clone returns an unfitted scaler with the same options.
func (s *StandardScaler) Clone() model.Component {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
