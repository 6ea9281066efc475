package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// DefaultTestSize is the held-out fraction used by the workflow.
const DefaultTestSize = 0.2

// Split is a train/test partition of a Dataset. Y matrices are n×1.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.Dense

	FeatureNames []string
	TargetName   string
}

// SplitOption configures TrainTestSplit
type SplitOption func(*splitConfig)

type splitConfig struct {
	seed   uint64
	seeded bool
}

// WithRandomState makes the row permutation reproducible
func WithRandomState(seed uint64) SplitOption {
	return func(c *splitConfig) {
		c.seed = seed
		c.seeded = true
	}
}

// TrainTestSplit takes the last column as the target and the preceding columns
// as features, then partitions the rows randomly: ceil(testSize·n) rows go to
// the test set and the rest to the training set.
func TrainTestSplit(ds *Dataset, testSize float64, opts ...SplitOption) (*Split, error) {
	if ds == nil || ds.Data == nil {
		return nil, errors.NewInsufficientDataError("TrainTestSplit", 0, 2, "no dataset")
	}
	if !(testSize > 0 && testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}

	var cfg splitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	n, cols := ds.Data.Dims()
	if cols < 2 {
		return nil, errors.NewValidationError("columns", "need at least one feature and one target", cols)
	}
	if len(ds.Columns) != cols {
		return nil, errors.NewDimensionError("TrainTestSplit", cols, len(ds.Columns), 1)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errors.NewInsufficientDataError("TrainTestSplit", n, 2,
			"test_size leaves the train or test set empty")
	}

	var r *rand.Rand
	if cfg.seeded {
		r = rand.New(rand.NewPCG(cfg.seed, cfg.seed))
	} else {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	perm := r.Perm(n)

	nFeatures := cols - 1
	s := &Split{
		XTrain:       mat.NewDense(nTrain, nFeatures, nil),
		XTest:        mat.NewDense(nTest, nFeatures, nil),
		YTrain:       mat.NewDense(nTrain, 1, nil),
		YTest:        mat.NewDense(nTest, 1, nil),
		FeatureNames: append([]string(nil), ds.Columns[:nFeatures]...),
		TargetName:   ds.Columns[nFeatures],
	}

	row := make([]float64, cols)
	for i, src := range perm {
		mat.Row(row, src, ds.Data)
		if i < nTest {
			s.XTest.SetRow(i, row[:nFeatures])
			s.YTest.Set(i, 0, row[nFeatures])
		} else {
			s.XTrain.SetRow(i-nTest, row[:nFeatures])
			s.YTrain.Set(i-nTest, 0, row[nFeatures])
		}
	}

	return s, nil
}
