package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// ScoreFunc は正解値と予測値からスコアを計算する。値が大きいほど良い。
type ScoreFunc func(yTrue, yPred mat.Matrix) (float64, error)

// Scoring names accepted by GetScorer.
const (
	ScoringR2   = "r2"
	ScoringNMSE = "neg_mean_squared_error"
	ScoringNMAE = "neg_mean_absolute_error"
	ScoringNRMS = "neg_root_mean_squared_error"
)

func negate(f ScoreFunc) ScoreFunc {
	return func(yTrue, yPred mat.Matrix) (float64, error) {
		v, err := f(yTrue, yPred)
		return -v, err
	}
}

var scorers = map[string]ScoreFunc{
	ScoringR2:   R2Score,
	ScoringNMSE: negate(MSE),
	ScoringNMAE: negate(MAE),
	ScoringNRMS: negate(RMSE),
}

// GetScorer はscikit-learnのscoring名に対応するScoreFuncを返す。
// 誤差系の指標は符号を反転して「大きいほど良い」に揃えている。
func GetScorer(name string) (ScoreFunc, error) {
	f, ok := scorers[name]
	if !ok {
		return nil, errors.NewValidationError("scoring", "unknown scoring function", name)
	}
	return f, nil
}

// ScorerNames returns the accepted scoring names in sorted order.
func ScorerNames() []string {
	names := make([]string, 0, len(scorers))
	for name := range scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
