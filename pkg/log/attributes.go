// Package log defines standard attribute keys for experiment runs.
//
// Using these keys across the loader, the search runner and the recorder keeps
// log lines from one run filterable by a common vocabulary. Keys follow a
// hierarchical naming convention (e.g., "model.name", "data.samples").

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "StandardScaler", "RandomForestRegressor", "Pipeline"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score", "search", "record"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "dataset", "modelselection", "experiment"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the run.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// SourceKey is the locator the dataset was read from.
	SourceKey = "data.source"

	// TrainSamplesKey and TestSamplesKey describe a train/test split.
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"
)

// Search Context
const (
	// CandidateKey is the index of a hyperparameter combination in grid order.
	CandidateKey = "search.candidate"

	// CandidatesKey is the number of combinations in the grid.
	CandidatesKey = "search.candidates"

	// FoldKey is the index of a cross-validation fold.
	FoldKey = "search.fold"

	// FoldsKey is the number of cross-validation folds.
	FoldsKey = "search.folds"

	// ParamsKey renders a combination as "stage__param=value" pairs.
	ParamsKey = "search.params"

	// ScoringKey names the scoring function.
	ScoringKey = "search.scoring"

	// WorkersKey is the size of the fit worker pool.
	WorkersKey = "search.workers"
)

// Tracking Context
const (
	ExperimentKey   = "tracking.experiment"
	ExperimentIDKey = "tracking.experiment_id"
	RunIDKey        = "tracking.run_id"
	RunStatusKey    = "tracking.run_status"
	ArtifactKey     = "tracking.artifact"
	ModelVersionKey = "tracking.model_version"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// DurationSecondsKey records the execution time in seconds for longer operations.
	DurationSecondsKey = "perf.duration_seconds"

	// ScoreKey records a score under the configured scoring function.
	ScoreKey = "metrics.score"

	// R2ScoreKey records R² coefficient of determination for regression.
	// Range typically [-∞, 1.0], with 1.0 being perfect prediction.
	R2ScoreKey = "metrics.r2_score"
)

// Error and Warning Context
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
	SuggestionKey = "error.suggestion"
)

// Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
	OperationSearch    = "search"
	OperationRecord    = "record"
	OperationLoad      = "load"
	OperationSplit     = "split"

	PhaseLoading    = "loading"
	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
	PhaseRecording  = "recording"

	ErrorEmptyData      = "EMPTY_DATA"
	ErrorInvalidGrid    = "INVALID_GRID"
	ErrorFitFailed      = "FIT_FAILED"
	ErrorRecordingFail  = "RECORDING_FAILED"
	ErrorDataUnavailabe = "DATA_UNAVAILABLE"
)
