package pipeline

import (
	"github.com/YuminosukeSato/gridtrack/ensemble"
	"github.com/YuminosukeSato/gridtrack/preprocessing"
)

// Stage names of the scaled random-forest pipeline.
const (
	StageScaler = "standard_scaler"
	StageForest = "random_forest"
)

// NewScaledForest returns an unfitted two-stage pipeline: a StandardScaler
// named "standard_scaler" followed by a RandomForestRegressor named
// "random_forest" configured by opts.
func NewScaledForest(opts ...ensemble.Option) *Pipeline {
	p, err := New(
		Step{Name: StageScaler, Estimator: preprocessing.NewStandardScalerDefault()},
		Step{Name: StageForest, Estimator: ensemble.NewRandomForestRegressor(opts...)},
	)
	if err != nil {
		// 固定の構成なので失敗しない
		panic(err)
	}
	return p
}
