package model

import "gonum.org/v1/gonum/mat"

// パイプラインは段ごとに必要な能力だけを型アサーションで確認する。
// 中間段は Transformer、最終段は Estimator を満たす。y は常に n×1。

type Fitter interface {
	Fit(X, y mat.Matrix) error
}

type Predictor interface {
	// Predict returns one prediction per row as an n×1 matrix.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer reports R² of the model's predictions against y.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Estimator is a supervised final stage; Pipeline itself satisfies it.
type Estimator interface {
	Fitter
	Predictor
	Scorer
}

// Transformer is an unsupervised intermediate stage such as StandardScaler.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
