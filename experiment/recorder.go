// Package experiment ties the workflow together: the Recorder writes a search
// outcome to the tracking store and the Runner drives one complete run from
// data loading to the closed run record.
package experiment

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/dataset"
	"github.com/YuminosukeSato/gridtrack/metrics"
	"github.com/YuminosukeSato/gridtrack/modelselection"
	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
	"github.com/YuminosukeSato/gridtrack/tracking"
)

// Metric names written for every run. No other metrics are recorded.
const (
	MetricTrainScore = "Train Score"
	MetricTestScore  = "Test Score"
)

// Artifact file names under the configured artifact path.
const (
	ModelArtifact  = "model.gob"
	CVPlotArtifact = "cv_results.png"
)

const (
	bestParamPrefix  = "best_"
	tagBestCVScore   = "best_cv_score"
	tagEstimator     = "estimator"
	paramCV          = "cv"
	paramScoring     = "scoring"
	paramCandidates  = "n_candidates"
	paramTrainSample = "train_samples"
)

// Recording summarizes what Record wrote.
type Recording struct {
	TrainScore   float64
	TestScore    float64
	ModelURI     string
	ModelVersion *tracking.ModelVersion // nil when no registered name was given
}

// Recorder writes search outcomes through a tracking Client.
type Recorder struct {
	client *tracking.Client
	plot   bool
	logger log.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithCVPlot enables the cv_results.png artifact.
func WithCVPlot(enabled bool) RecorderOption {
	return func(r *Recorder) {
		r.plot = enabled
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l log.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder creates a Recorder on client.
func NewRecorder(client *tracking.Client, opts ...RecorderOption) *Recorder {
	r := &Recorder{client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetLogger()
	}
	r.logger = r.logger.With(log.ComponentKey, "experiment")
	return r
}

// EnsureExperiment returns the experiment called name, creating it if needed.
func (r *Recorder) EnsureExperiment(ctx context.Context, name string) (*tracking.Experiment, error) {
	exp, err := r.client.GetOrCreateExperiment(ctx, name)
	if err != nil {
		return nil, errors.NewRecordingFailureError("ensure experiment", "", err)
	}
	return exp, nil
}

// StartRun opens a run in exp. The caller owns the run and must End it.
func (r *Recorder) StartRun(ctx context.Context, exp *tracking.Experiment, runName string) (*tracking.Run, error) {
	run, err := r.client.StartRun(ctx, exp, runName)
	if err != nil {
		return nil, errors.NewRecordingFailureError("start run", "", err)
	}
	return run, nil
}

// Record scores the refit best pipeline on both sides of the split with the
// search's scoring function, then writes params, tags, the two score metrics,
// the serialized model and, when registeredModelName is not empty, a new
// model version. Each write stands on
// its own: a failure stops recording but leaves earlier writes in place.
func (r *Recorder) Record(
	ctx context.Context,
	run *tracking.Run,
	result *modelselection.SearchResult,
	split *dataset.Split,
	artifactPath, registeredModelName string,
) (*Recording, error) {
	fail := func(op string, err error) error {
		return errors.NewRecordingFailureError(op, run.ID(), err)
	}
	if result == nil || result.BestEstimator == nil {
		return nil, fail("record", errors.New("search result has no fitted estimator"))
	}
	if split == nil || split.XTrain == nil || split.XTest == nil {
		return nil, fail("record", errors.New("no train/test split to score"))
	}

	// 記録するスコアは探索と同じscoringで計算する
	scorer, err := metrics.GetScorer(result.Scoring)
	if err != nil {
		return nil, fail("resolve scorer", err)
	}
	best := result.BestEstimator
	trainScore, err := scoreWith(best, scorer, split.XTrain, split.YTrain)
	if err != nil {
		return nil, fail("score train split", err)
	}
	testScore, err := scoreWith(best, scorer, split.XTest, split.YTest)
	if err != nil {
		return nil, fail("score test split", err)
	}

	if err := run.LogParams(ctx, searchParams(result, split)); err != nil {
		return nil, fail("log params", err)
	}
	if err := run.SetTag(ctx, tagBestCVScore, strconv.FormatFloat(result.BestScore, 'g', -1, 64)); err != nil {
		return nil, fail("set tag", err)
	}
	if err := run.SetTag(ctx, tagEstimator, best.String()); err != nil {
		return nil, fail("set tag", err)
	}

	if err := run.LogMetric(ctx, MetricTrainScore, trainScore); err != nil {
		return nil, fail("log metric", err)
	}
	if err := run.LogMetric(ctx, MetricTestScore, testScore); err != nil {
		return nil, fail("log metric", err)
	}

	art, err := run.LogArtifactFunc(ctx, path.Join(artifactPath, ModelArtifact), func(w io.Writer) error {
		return model.SaveModelToWriter(best, w)
	})
	if err != nil {
		return nil, fail("log model", err)
	}

	if r.plot {
		if _, err := run.LogArtifactFunc(ctx, path.Join(artifactPath, CVPlotArtifact), result.PlotCVScores); err != nil {
			return nil, fail("log cv plot", err)
		}
	}

	rec := &Recording{
		TrainScore: trainScore,
		TestScore:  testScore,
		ModelURI:   art.URI,
	}
	if registeredModelName != "" {
		mv, err := r.client.RegisterModel(ctx, registeredModelName, art.URI, run.ID())
		if err != nil {
			return rec, fail("register model", err)
		}
		rec.ModelVersion = mv
	}

	r.logger.Info("Run recorded",
		log.RunIDKey, run.ID(),
		log.ArtifactKey, art.URI,
		"train_score", trainScore,
		"test_score", testScore,
	)
	return rec, nil
}

func scoreWith(p *pipeline.Pipeline, scorer metrics.ScoreFunc, X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	return scorer(y, pred)
}

// searchParams flattens the search configuration and winning combination
// into string params.
func searchParams(result *modelselection.SearchResult, split *dataset.Split) map[string]string {
	params := map[string]string{
		paramCV:         strconv.Itoa(result.NSplits),
		paramScoring:    result.Scoring,
		paramCandidates: strconv.Itoa(len(result.CVResults)),
	}
	n, _ := split.XTrain.Dims()
	params[paramTrainSample] = strconv.Itoa(n)
	for k, v := range result.BestParams {
		params[bestParamPrefix+k] = fmt.Sprint(v)
	}
	return params
}
