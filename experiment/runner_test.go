package experiment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/modelselection"
	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
	"github.com/YuminosukeSato/gridtrack/tracking"
)

func TestRunnerRecordsRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 300))
	client := openClient(t, cfg)
	logger, _ := log.NewTestLogger(log.LevelInfo)

	rep, err := NewRunner(cfg, client, WithRunnerLogger(logger)).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	info, err := client.GetRun(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != tracking.RunStatusFinished {
		t.Errorf("status = %s, want FINISHED", info.Status)
	}

	metrics, err := client.ListMetrics(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Fatalf("len(metrics) = %d, want exactly 2: %+v", len(metrics), metrics)
	}
	got := map[string]float64{}
	for _, m := range metrics {
		got[m.Key] = m.Value
	}
	for _, key := range []string{MetricTrainScore, MetricTestScore} {
		v, ok := got[key]
		if !ok {
			t.Errorf("metric %q missing", key)
			continue
		}
		if v > 1 {
			t.Errorf("%s = %v, want <= 1", key, v)
		}
	}
	if rep.TrainScore < 0.5 || rep.TestScore < 0.5 {
		t.Errorf("scores too low: train=%v test=%v", rep.TrainScore, rep.TestScore)
	}

	if rep.ModelVersion != 1 {
		t.Errorf("model version = %d, want 1", rep.ModelVersion)
	}
	latest, err := client.LatestVersion(ctx, cfg.Model.RegisteredModelName)
	if err != nil {
		t.Fatal(err)
	}
	if latest.RunID != rep.RunID || latest.Source != rep.ModelURI {
		t.Errorf("latest version = %+v, want run %s source %s", latest, rep.RunID, rep.ModelURI)
	}

	if _, ok := rep.BestParams["random_forest__n_estimators"]; !ok {
		t.Errorf("best params = %v, missing n_estimators", rep.BestParams)
	}
	if !logger.ContainsMessage("...Training Done! --- Total training time:") {
		t.Error("missing completion log line")
	}

	// 保存したモデルを読み戻して予測できること
	rc, err := client.OpenArtifact(ctx, rep.RunID, filepath.ToSlash(filepath.Join(cfg.Model.ArtifactPath, ModelArtifact)))
	if err != nil {
		t.Fatalf("OpenArtifact() error = %v", err)
	}
	defer rc.Close()
	var loaded pipeline.Pipeline
	if err := model.LoadModelFromReader(&loaded, rc); err != nil {
		t.Fatalf("LoadModelFromReader() error = %v", err)
	}
	if diff := loaded.Names(); len(diff) != 2 || diff[0] != pipeline.StageScaler || diff[1] != pipeline.StageForest {
		t.Errorf("loaded stages = %v", diff)
	}
}

func TestRunnerSingleCombination(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 120))
	cfg.Search.ParamGrid = map[string]map[string][]interface{}{
		"random_forest": {"n_estimators": {5}},
	}
	client := openClient(t, cfg)

	rep, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if v := rep.BestParams["random_forest__n_estimators"]; v != 5 {
		t.Errorf("best n_estimators = %v, want 5", v)
	}
}

func TestRunnerRegistersNewVersionPerRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 100))
	client := openClient(t, cfg)

	for want := 1; want <= 2; want++ {
		rep, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
		if err != nil {
			t.Fatalf("run %d error = %v", want, err)
		}
		if rep.ModelVersion != want {
			t.Errorf("run %d model version = %d", want, rep.ModelVersion)
		}
	}
}

func TestRunnerSkipsRegistrationWithoutName(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 100))
	cfg.Model.RegisteredModelName = ""
	client := openClient(t, cfg)

	rep, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.ModelVersion != 0 {
		t.Errorf("model version = %d, want 0", rep.ModelVersion)
	}
	if _, err := client.LatestVersion(ctx, "random_forest"); !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("LatestVersion error = %v, want ErrNotFound", err)
	}
}

func TestRunnerInvalidGridFailsBeforeRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 50))
	cfg.Search.ParamGrid = map[string]map[string][]interface{}{
		"Random_Forest": {"n_estimators": {90}},
	}
	client := openClient(t, cfg)

	_, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	var gridErr *errors.InvalidGridError
	if !errors.As(err, &gridErr) {
		t.Fatalf("error = %v, want InvalidGridError", err)
	}
	if gridErr.Stage != "Random_Forest" {
		t.Errorf("stage = %q", gridErr.Stage)
	}
	assertNoRuns(t, client, cfg.Experiment.Name)
}

func TestRunnerDataUnavailable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.csv"))
	client := openClient(t, cfg)

	_, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	var dataErr *errors.DataUnavailableError
	if !errors.As(err, &dataErr) {
		t.Fatalf("error = %v, want DataUnavailableError", err)
	}
	assertNoRuns(t, client, cfg.Experiment.Name)
}

func TestRunnerFewerRowsThanFoldsMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	// 5行 → 学習4行、5分割は不可能
	cfg := testConfig(t, writeHousingCSV(t, 5))
	cfg.Search.CV = 5
	client := openClient(t, cfg)

	rep, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	if rep != nil {
		t.Errorf("report = %+v, want nil", rep)
	}
	var insufficient *errors.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error = %v, want InsufficientDataError", err)
	}

	exp, err := client.GetOrCreateExperiment(ctx, cfg.Experiment.Name)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := client.ListRuns(ctx, exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Status != tracking.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", runs[0].Status)
	}
	metrics, _ := client.ListMetrics(ctx, runs[0].ID)
	if len(metrics) != 0 {
		t.Errorf("metrics = %+v, want none", metrics)
	}
}

func assertNoRuns(t *testing.T, client *tracking.Client, experiment string) {
	t.Helper()
	ctx := context.Background()
	exp, err := client.GetOrCreateExperiment(ctx, experiment)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := client.ListRuns(ctx, exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %+v, want none", runs)
	}
}

// 20,000行・8特徴量での通し実行
func TestRunnerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end run in short mode")
	}
	ctx := context.Background()
	cfg := testConfig(t, writeHousingCSV(t, 20000))
	cfg.Search.ParamGrid = modelselection.Grid{
		"random_forest": {
			"n_estimators": {90},
			"criterion":    {"squared_error"},
		},
	}
	cfg.Search.CV = 2
	client := openClient(t, cfg)

	rep, err := NewRunner(cfg, client, WithRunnerLogger(quietLogger())).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	metrics, err := client.ListMetrics(ctx, rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 {
		t.Errorf("len(metrics) = %d, want 2", len(metrics))
	}
	for _, m := range metrics {
		if m.Value > 1 {
			t.Errorf("%s = %v, want <= 1", m.Key, m.Value)
		}
	}
	if rep.TestScore < 0.8 {
		t.Errorf("test score = %v, want >= 0.8", rep.TestScore)
	}
	if rep.ModelVersion != 1 {
		t.Errorf("model version = %d, want 1", rep.ModelVersion)
	}
}
