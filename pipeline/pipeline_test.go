package pipeline

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/ensemble"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/preprocessing"
)

func makeData(n int) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(1, 2))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		// 異なるスケールの特徴量
		a, b := r.Float64()*1000, r.Float64()
		X.SetRow(i, []float64{a, b})
		y.Set(i, 0, a/100+5*b)
	}
	return X, y
}

func TestNewScaledForest_StageNames(t *testing.T) {
	p := NewScaledForest()

	if diff := cmp.Diff([]string{"standard_scaler", "random_forest"}, p.Names()); diff != "" {
		t.Errorf("stage names mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.Steps()[0].Estimator.(*preprocessing.StandardScaler); !ok {
		t.Errorf("first stage is %T", p.Steps()[0].Estimator)
	}
	if _, ok := p.Steps()[1].Estimator.(*ensemble.RandomForestRegressor); !ok {
		t.Errorf("second stage is %T", p.Steps()[1].Estimator)
	}
	if p.IsFitted() {
		t.Error("builder must return an unfitted pipeline")
	}

	// 毎回新しいインスタンスを返す
	q := NewScaledForest()
	s1, _ := p.Stage(StageForest)
	s2, _ := q.Stage(StageForest)
	if s1 == s2 {
		t.Error("builder must not share stage instances")
	}
}

func TestPipeline_FitPredictScore(t *testing.T) {
	X, y := makeData(200)
	p := NewScaledForest(ensemble.WithNEstimators(20), ensemble.WithRandomState(0))

	if _, err := p.Predict(X); err == nil {
		t.Error("expected NotFittedError before Fit")
	}

	if err := p.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	score, err := p.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if score < 0.9 || score > 1 {
		t.Errorf("training R² = %v", score)
	}

	scaler, _ := p.Stage(StageScaler)
	if !scaler.(*preprocessing.StandardScaler).IsFitted() {
		t.Error("scaler should be fitted by the pipeline")
	}
}

func TestPipeline_Params(t *testing.T) {
	p := NewScaledForest()

	params := p.GetParams()
	if params["random_forest__n_estimators"] != 100 {
		t.Errorf("random_forest__n_estimators = %v", params["random_forest__n_estimators"])
	}
	if params["standard_scaler__with_mean"] != true {
		t.Errorf("standard_scaler__with_mean = %v", params["standard_scaler__with_mean"])
	}

	if err := p.SetParams(map[string]interface{}{
		"random_forest__n_estimators": 90,
		"random_forest__criterion":    "squared_error",
	}); err != nil {
		t.Fatal(err)
	}
	if got := p.GetParams()["random_forest__n_estimators"]; got != 90 {
		t.Errorf("after SetParams n_estimators = %v", got)
	}

	// 未知のステージ
	err := p.SetParams(map[string]interface{}{"gradient_boosting__n_estimators": 10})
	var ge *errors.InvalidGridError
	if !errors.As(err, &ge) || ge.Stage != "gradient_boosting" {
		t.Errorf("expected InvalidGridError for unknown stage, got %v", err)
	}

	// 一部が不正なら何も変更しない
	err = p.SetParams(map[string]interface{}{
		"standard_scaler__with_mean":  false,
		"random_forest__n_estimators": "lots",
	})
	if err == nil {
		t.Fatal("expected error for invalid value")
	}
	if p.GetParams()["standard_scaler__with_mean"] != true {
		t.Error("failed SetParams must leave every stage unchanged")
	}

	if err := p.SetParams(map[string]interface{}{"n_estimators": 10}); err == nil {
		t.Error("expected error for key without stage prefix")
	}
}

func TestPipeline_CloneIsIndependent(t *testing.T) {
	X, y := makeData(50)
	p := NewScaledForest(ensemble.WithNEstimators(3))
	if err := p.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	c := p.ClonePipeline()
	if c.IsFitted() {
		t.Error("clone must be unfitted")
	}
	if err := c.SetStageParams(StageForest, map[string]interface{}{"n_estimators": 7}); err != nil {
		t.Fatal(err)
	}
	if p.GetParams()["random_forest__n_estimators"] != 3 {
		t.Error("changing the clone must not affect the original")
	}
}

func TestNew_Validation(t *testing.T) {
	scaler := preprocessing.NewStandardScalerDefault()
	forest := ensemble.NewRandomForestRegressor()

	tests := []struct {
		name  string
		steps []Step
	}{
		{"empty", nil},
		{"duplicate names", []Step{{"a", scaler}, {"a", forest}}},
		{"separator in name", []Step{{"a__b", scaler}, {"rf", forest}}},
		{"estimator in the middle", []Step{{"rf", forest}, {"rf2", ensemble.NewRandomForestRegressor()}}},
		{"transformer at the end", []Step{{"scaler", scaler}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.steps...); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPipeline_GobRoundTrip(t *testing.T) {
	X, y := makeData(60)
	p := NewScaledForest(ensemble.WithNEstimators(4), ensemble.WithRandomState(5))
	if err := p.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.SaveModelToWriter(p, &buf); err != nil {
		t.Fatal(err)
	}
	var loaded Pipeline
	if err := model.LoadModelFromReader(&loaded, &buf); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(p.Names(), loaded.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	want, _ := p.Predict(X)
	got, err := loaded.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(want, got, 1e-12) {
		t.Error("loaded pipeline predicts differently")
	}
	if math.IsNaN(mat.Sum(got)) {
		t.Error("NaN predictions")
	}
}
