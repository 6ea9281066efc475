package model

// EstimatorState は学習状態。gob で保存されるため値を変えないこと。
type EstimatorState int

const (
	NotFitted EstimatorState = iota
	Fitted
)

// BaseEstimator is embedded by every stage. Its fields are exported so a
// pipeline read back from model.gob keeps its fitted state and input width.
type BaseEstimator struct {
	State     EstimatorState
	NFeatures int
}

func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted marks the estimator fitted on nFeatures columns.
func (e *BaseEstimator) SetFitted(nFeatures int) {
	e.State = Fitted
	e.NFeatures = nFeatures
}

// Reset forgets the fit; used by Clone and SetParams.
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
	e.NFeatures = 0
}
