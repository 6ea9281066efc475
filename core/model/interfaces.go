// Package model provides the capability interfaces shared by estimators,
// transformers and pipelines, plus helpers for hyperparameter values and
// model persistence.
package model

// ParamGetter is the interface for models that expose their parameters.
type ParamGetter interface {
	// GetParams returns the model's hyperparameters keyed by name.
	GetParams() map[string]interface{}
}

// ParamSetter is the interface for models that allow parameter modification.
//
// SetParams must reject unknown names and values of the wrong type without
// modifying the receiver, so a grid can be validated against a clone.
type ParamSetter interface {
	ParamGetter
	SetParams(params map[string]interface{}) error
}

// Cloner はモデルの新しい未学習インスタンスを同じパラメータで作成する
type Cloner interface {
	Clone() Component
}

// Component はパイプラインのステージとして使用可能なモデル。
// 具体的な型はさらに Transformer か Estimator のいずれかを満たす。
type Component interface {
	ParamSetter
	Cloner
}
