// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// scikit-learnの警告・例外システムにインスパイアされており、実験の各段階
// (データ取得、分割、グリッドサーチ、記録) に対応する構造化されたエラー型を定義します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("gridtrack-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
// FitFailedWarning などのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	scikit-learn互換の警告型
//
// ===========================================================================

// FitFailedWarning はグリッドサーチ中に特定のパラメータ組み合わせの学習が
// 失敗したが、サーチ自体は継続される場合に発生する警告です。
type FitFailedWarning struct {
	Candidate int
	Fold      int
	Params    string
	Err       error
}

func (w *FitFailedWarning) Error() string {
	return fmt.Sprintf("estimator fit failed for candidate %d (%s) on fold %d; the candidate is scored as failing: %v",
		w.Candidate, w.Params, w.Fold, w.Err)
}

func (w *FitFailedWarning) Unwrap() error {
	return w.Err
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *FitFailedWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("candidate", w.Candidate).
		Int("fold", w.Fold).
		Str("params", w.Params).
		AnErr("cause", w.Err).
		Str("type", "FitFailedWarning")
}

// NewFitFailedWarning は新しいFitFailedWarningを作成します。
func NewFitFailedWarning(candidate, fold int, params string, err error) *FitFailedWarning {
	return &FitFailedWarning{Candidate: candidate, Fold: fold, Params: params, Err: err}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、R²を計算する際に正解値の分散がゼロだった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	実験ワークフローのエラー型
//
// ===========================================================================

// DataUnavailableError はデータソースの取得またはCSVとしての解析に失敗した場合のエラーです。
// 実行は中断されます。
type DataUnavailableError struct {
	Locator string
	Reason  string
	Err     error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gridtrack: data unavailable at %q: %s: %v", e.Locator, e.Reason, e.Err)
	}
	return fmt.Sprintf("gridtrack: data unavailable at %q: %s", e.Locator, e.Reason)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataUnavailableError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("locator", e.Locator).
		Str("reason", e.Reason).
		AnErr("cause", e.Err).
		Str("type", "DataUnavailableError")
}

// NewDataUnavailableError は新しいDataUnavailableErrorを作成し、スタックトレースを付与します。
func NewDataUnavailableError(locator, reason string, err error) error {
	return errors.WithStack(&DataUnavailableError{Locator: locator, Reason: reason, Err: err})
}

// InsufficientDataError は分割やクロスバリデーションに必要な行数が足りない場合のエラーです。
type InsufficientDataError struct {
	Op       string
	Samples  int
	Required int
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("gridtrack: %s: insufficient data: %s (samples=%d, required=%d)",
		e.Op, e.Reason, e.Samples, e.Required)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("samples", e.Samples).
		Int("required", e.Required).
		Str("reason", e.Reason).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(op string, samples, required int, reason string) error {
	return errors.WithStack(&InsufficientDataError{Op: op, Samples: samples, Required: required, Reason: reason})
}

// InvalidGridError はハイパーパラメータグリッドが存在しないステージやパラメータを
// 参照している場合のエラーです。学習開始前に検出されます。
type InvalidGridError struct {
	Stage  string
	Param  string
	Reason string
}

func (e *InvalidGridError) Error() string {
	switch {
	case e.Param != "":
		return fmt.Sprintf("gridtrack: invalid parameter grid: %s__%s: %s", e.Stage, e.Param, e.Reason)
	case e.Stage != "":
		return fmt.Sprintf("gridtrack: invalid parameter grid: stage %q: %s", e.Stage, e.Reason)
	default:
		return fmt.Sprintf("gridtrack: invalid parameter grid: %s", e.Reason)
	}
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidGridError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage).
		Str("param", e.Param).
		Str("reason", e.Reason).
		Str("type", "InvalidGridError")
}

// NewInvalidGridError は新しいInvalidGridErrorを作成し、スタックトレースを付与します。
func NewInvalidGridError(stage, param, reason string) error {
	return errors.WithStack(&InvalidGridError{Stage: stage, Param: param, Reason: reason})
}

// FitFailureError は学習が致命的に失敗した場合のエラーです。
// グリッドサーチでは、全ての組み合わせが失敗した場合または再学習が失敗した場合に返されます。
type FitFailureError struct {
	Op         string
	Candidates int
	Err        error
}

func (e *FitFailureError) Error() string {
	if e.Candidates > 0 {
		return fmt.Sprintf("gridtrack: %s: all %d candidates failed to fit: %v", e.Op, e.Candidates, e.Err)
	}
	return fmt.Sprintf("gridtrack: %s: fit failed: %v", e.Op, e.Err)
}

func (e *FitFailureError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *FitFailureError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("candidates", e.Candidates).
		AnErr("cause", e.Err).
		Str("type", "FitFailureError")
}

// NewFitFailureError は新しいFitFailureErrorを作成し、スタックトレースを付与します。
func NewFitFailureError(op string, candidates int, err error) error {
	return errors.WithStack(&FitFailureError{Op: op, Candidates: candidates, Err: err})
}

// RecordingFailureError はトラッキングストアへの書き込みに失敗した場合のエラーです。
// それまでに書き込まれた内容は残ります。
type RecordingFailureError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RecordingFailureError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("gridtrack: recording failed: %s (run %s): %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("gridtrack: recording failed: %s: %v", e.Op, e.Err)
}

func (e *RecordingFailureError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *RecordingFailureError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("run_id", e.RunID).
		AnErr("cause", e.Err).
		Str("type", "RecordingFailureError")
}

// NewRecordingFailureError は新しいRecordingFailureErrorを作成し、スタックトレースを付与します。
func NewRecordingFailureError(op, runID string, err error) error {
	return errors.WithStack(&RecordingFailureError{Op: op, RunID: runID, Err: err})
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("gridtrack: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("gridtrack: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gridtrack: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("gridtrack: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gridtrack: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gridtrack: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// CombineErrors は二つのエラーを一つにまとめます。どちらかが nil の場合はもう一方を返します。
// 実行の後処理（ランのクローズ）で発生したエラーを元のエラーに添付するために使用します。
func CombineErrors(err, other error) error {
	return errors.CombineErrors(err, other)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrRunClosed は終了済みのランに書き込もうとした場合のエラーです。
	ErrRunClosed = New("run already ended")
)
