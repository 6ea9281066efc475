// Package ensemble provides a bagged random-forest regressor built from CART
// regression trees.
package ensemble

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/core/parallel"
	"github.com/YuminosukeSato/gridtrack/metrics"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

func init() {
	gob.Register(&RandomForestRegressor{})
}

// predictParallelThreshold is the row count above which Predict fans out.
const predictParallelThreshold = 2048

// RandomForestRegressor averages the predictions of decision trees, each fit
// on a bootstrap sample of the training data with a random feature subset
// considered at every split.
//
// Missing feature values (NaN) are allowed and are always routed to the right
// child of a split.
type RandomForestRegressor struct {
	model.BaseEstimator

	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     float64
	Bootstrap       bool
	Seed            int64
	Seeded          bool
	NJobs           int

	// Trees holds the fitted trees
	Trees []Tree
}

// NewRandomForestRegressor creates a new forest with scikit-learn defaults
//
// 使用例:
//
//	rf := ensemble.NewRandomForestRegressor(
//	    ensemble.WithNEstimators(100),
//	    ensemble.WithRandomState(42),
//	)
//	err := rf.Fit(X, y)
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		NEstimators:     100,
		Criterion:       CriterionSquaredError,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
		NJobs:           -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestRegressor) validate() error {
	switch {
	case rf.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.NEstimators)
	case rf.Criterion != CriterionSquaredError && rf.Criterion != CriterionFriedmanMSE:
		return errors.NewValidationError("criterion", "must be squared_error or friedman_mse", rf.Criterion)
	case rf.MaxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 = unlimited)", rf.MaxDepth)
	case rf.MinSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", rf.MinSamplesSplit)
	case rf.MinSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", rf.MinSamplesLeaf)
	case !(rf.MaxFeatures > 0 && rf.MaxFeatures <= 1):
		return errors.NewValidationError("max_features", "must be in (0, 1]", rf.MaxFeatures)
	}
	return nil
}

// Fit builds the forest from the training set (X, y). y must be n×1.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yCols != 1 {
		return errors.NewValueError("RandomForestRegressor.Fit", "y must be a column vector (n×1 matrix)")
	}
	if yRows != rows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, yRows, 0)
	}

	yv := make([]float64, rows)
	for i := range yv {
		yv[i] = y.At(i, 0)
	}
	if err := errors.CheckNumericalStability("RandomForestRegressor.Fit target", yv); err != nil {
		return err
	}

	colData := make([][]float64, cols)
	for j := range colData {
		c := make([]float64, rows)
		mat.Col(c, j, X)
		colData[j] = c
	}

	params := treeParams{
		criterion:       rf.Criterion,
		maxDepth:        rf.MaxDepth,
		minSamplesSplit: rf.MinSamplesSplit,
		minSamplesLeaf:  rf.MinSamplesLeaf,
		maxFeatures:     max(1, int(rf.MaxFeatures*float64(cols))),
	}

	// 木ごとのシードは一つのマスター乱数列から順に引くため、
	// シード指定時は並列度に関係なく同じ森が得られる
	var master *rand.Rand
	if rf.Seeded {
		master = rand.New(rand.NewPCG(uint64(rf.Seed), uint64(rf.Seed)))
	} else {
		master = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	seeds := make([]uint64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]Tree, rf.NEstimators)
	parallel.ParallelizeN(rf.NEstimators, rf.NJobs, func(start, end int) {
		for t := start; t < end; t++ {
			rng := rand.New(rand.NewPCG(seeds[t], uint64(t)))
			idx := make([]int, rows)
			if rf.Bootstrap {
				for i := range idx {
					idx[i] = rng.IntN(rows)
				}
			} else {
				for i := range idx {
					idx[i] = i
				}
			}
			trees[t] = newTreeBuilder(colData, yv, params, rng).fit(idx)
		}
	})

	rf.Trees = trees
	rf.SetFitted(cols)
	return nil
}

// Predict returns the mean prediction of all trees as an n×1 matrix.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}

	rows, cols := X.Dims()
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.NFeatures, cols, 1)
	}

	out := make([]float64, rows)
	nTrees := float64(len(rf.Trees))
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			sum := 0.0
			for t := range rf.Trees {
				sum += rf.Trees[t].Predict(row)
			}
			out[i] = sum / nTrees
		}
	})

	return mat.NewDense(rows, 1, out), nil
}

// Score returns the coefficient of determination R² of the prediction.
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// GetParams returns the hyperparameters under their scikit-learn names.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	var randomState interface{}
	if rf.Seeded {
		randomState = rf.Seed
	}
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"criterion":         rf.Criterion,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"random_state":      randomState,
		"n_jobs":            rf.NJobs,
	}
}

// SetParams sets hyperparameters by name. On any unknown name, wrong type or
// out-of-range value the forest is left unchanged.
func (rf *RandomForestRegressor) SetParams(params map[string]interface{}) error {
	next := *rf
	for name, v := range params {
		var err error
		switch name {
		case "n_estimators":
			next.NEstimators, err = model.ToInt(name, v)
		case "criterion":
			next.Criterion, err = model.ToString(name, v)
		case "max_depth":
			if v == nil {
				next.MaxDepth = 0
			} else {
				next.MaxDepth, err = model.ToInt(name, v)
			}
		case "min_samples_split":
			next.MinSamplesSplit, err = model.ToInt(name, v)
		case "min_samples_leaf":
			next.MinSamplesLeaf, err = model.ToInt(name, v)
		case "max_features":
			next.MaxFeatures, err = model.ToFloat(name, v)
		case "bootstrap":
			next.Bootstrap, err = model.ToBool(name, v)
		case "random_state":
			if v == nil {
				next.Seeded, next.Seed = false, 0
			} else {
				var seed int
				seed, err = model.ToInt(name, v)
				next.Seeded, next.Seed = true, int64(seed)
			}
		case "n_jobs":
			next.NJobs, err = model.ToInt(name, v)
		default:
			return errors.NewValidationError(name, "unknown parameter for RandomForestRegressor", v)
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*rf = next
	return nil
}

// Clone returns an unfitted forest with the same hyperparameters.
func (rf *RandomForestRegressor) Clone() model.Component {
	c := *rf
	c.Trees = nil
	c.Reset()
	return &c
}

// String はモデルの文字列表現を返す
func (rf *RandomForestRegressor) String() string {
	depth := "None"
	if rf.MaxDepth > 0 {
		depth = fmt.Sprint(rf.MaxDepth)
	}
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, criterion=%s, max_depth=%s, max_features=%g)",
		rf.NEstimators, rf.Criterion, depth, rf.MaxFeatures)
}

// MeanDepth returns the average depth of the fitted trees.
func (rf *RandomForestRegressor) MeanDepth() float64 {
	if len(rf.Trees) == 0 {
		return math.NaN()
	}
	total := 0
	for i := range rf.Trees {
		total += rf.Trees[i].Depth()
	}
	return float64(total) / float64(len(rf.Trees))
}
