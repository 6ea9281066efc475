// Package gridtrack runs tracked hyperparameter searches for tabular
// regression in Go.
//
// A run downloads a CSV table, holds out a test split, grid-searches a
// StandardScaler + RandomForestRegressor pipeline with k-fold
// cross-validation, and records the outcome: the "Train Score" and
// "Test Score" metrics, the best parameters, the serialized model and a new
// registered model version.
//
// # Quick Start
//
// Run the built-in configuration (California housing, n_estimators 90/100,
// 2-fold CV):
//
//	go run ./cmd/gridtrack --log-level info
//
// Or drive the search directly:
//
//	template := pipeline.NewScaledForest(ensemble.WithRandomState(42))
//	grid, err := modelselection.NewParamGrid(template, modelselection.Grid{
//	    "random_forest": {"n_estimators": {90, 100}, "criterion": {"squared_error"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := modelselection.NewGridSearchCV(template, grid,
//	    modelselection.WithCV(2),
//	    modelselection.WithNJobs(-1),
//	).Fit(ctx, XTrain, yTrain)
//
// # Packages
//
//   - dataset: CSV loading (http, file) and train/test splitting
//   - preprocessing: StandardScaler
//   - ensemble: RandomForestRegressor and CART regression trees
//   - pipeline: named-stage pipelines and the scaled-forest builder
//   - modelselection: KFold, ParamGrid and GridSearchCV
//   - metrics: regression metrics and named scorers
//   - tracking: experiments, runs, metrics, artifacts and the model registry
//     (SQLite metadata, local or GCS artifacts)
//   - experiment: the Recorder and the Runner that ties a run together
//   - config: embedded defaults with YAML overlay
//   - core/model: capability interfaces, parameter coercion, persistence
//   - core/parallel: worker fan-out helpers
//   - pkg/log, pkg/errors, pkg/telemetry: logging, typed errors, tracing
//
// # Performance
//
// Candidate/fold fits run on a bounded errgroup pool (n_jobs, -1 = all
// CPUs). Forest trees fit in parallel when the forest is used on its own;
// inside a search each forest stays single threaded.
//
// # License
//
// gridtrack is released under the MIT License.
package gridtrack
