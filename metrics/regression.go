package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// 入力はすべて n×1 の列ベクトル（*mat.VecDense または n×1 の *mat.Dense）

// checkColumns は正解値と予測値が同じ長さの空でない列ベクトルであることを検証し、長さを返す
func checkColumns(op string, yTrue, yPred mat.Matrix) (int, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if cTrue != 1 || cPred != 1 {
		return 0, errors.NewValueError(op, "must be a column vector (n×1 matrix)")
	}
	if rTrue != rPred {
		return 0, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	return rTrue, nil
}

// meanResidual averages loss(yTrue[i] - yPred[i]) over the column.
func meanResidual(op string, yTrue, yPred mat.Matrix, loss func(float64) float64) (float64, error) {
	n, err := checkColumns(op, yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range n {
		sum += loss(yTrue.At(i, 0) - yPred.At(i, 0))
	}
	return sum / float64(n), nil
}

// MSE は平均二乗誤差
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	return meanResidual("MSE", yTrue, yPred, func(d float64) float64 { return d * d })
}

// RMSE は MSE の平方根。目的変数と同じ単位になる
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差
func MAE(yTrue, yPred mat.Matrix) (float64, error) {
	return meanResidual("MAE", yTrue, yPred, math.Abs)
}

// R2Score は決定係数（R²）を計算する
//
// 正解値の分散が0の場合、R²は定義されない。scikit-learnと同様に、
// 予測が完全一致なら1.0、そうでなければ0.0を返し UndefinedMetricWarning を発生させる。
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	if _, err := checkColumns("R2Score", yTrue, yPred); err != nil {
		return 0, err
	}

	yCol := mat.Col(nil, 0, yTrue)
	yMean := stat.Mean(yCol, nil)

	var tss, rss float64
	for i, y := range yCol {
		d := y - yPred.At(i, 0)
		tss += (y - yMean) * (y - yMean)
		rss += d * d
	}

	if tss == 0 {
		if rss == 0 {
			return 1.0, nil
		}
		errors.Warn(errors.NewUndefinedMetricWarning("R2Score", "no variance in yTrue", 0.0))
		return 0.0, nil
	}

	// R² = 1 - RSS/TSS
	r2 := 1 - rss/tss
	if err := errors.CheckScalar("R2Score", r2); err != nil {
		return 0, err
	}
	return r2, nil
}
