package experiment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YuminosukeSato/gridtrack/config"
	"github.com/YuminosukeSato/gridtrack/dataset"
	"github.com/YuminosukeSato/gridtrack/ensemble"
	"github.com/YuminosukeSato/gridtrack/modelselection"
	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
	"github.com/YuminosukeSato/gridtrack/tracking"
)

var tracer = otel.Tracer("github.com/YuminosukeSato/gridtrack/experiment")

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Report summarizes a completed run.
type Report struct {
	RunID        string
	ExperimentID string
	TrainScore   float64
	TestScore    float64
	BestParams   modelselection.Params
	BestCVScore  float64
	ModelURI     string
	ModelVersion int // 0 when no model was registered
	Elapsed      time.Duration
}

// Runner executes one configured run against an explicit tracking Client.
type Runner struct {
	cfg        *config.Config
	client     *tracking.Client
	httpClient *http.Client
	logger     log.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger passed down to every stage.
func WithRunnerLogger(l log.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithHTTPClient overrides the client used to fetch http(s) datasets.
func WithHTTPClient(c *http.Client) RunnerOption {
	return func(r *Runner) {
		r.httpClient = c
	}
}

// NewRunner creates a Runner. cfg is expected to be validated.
func NewRunner(cfg *config.Config, client *tracking.Client, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg, client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetLogger()
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: cfg.Data.Timeout()}
	}
	return r
}

// Run loads and splits the data, searches the grid, and records the outcome.
// Once a run has been started it is always ended: FINISHED on success,
// FAILED otherwise. An error while ending is combined with the cause.
func (r *Runner) Run(ctx context.Context) (rep *Report, err error) {
	start := time.Now()
	cfg := r.cfg
	ctx, span := tracer.Start(ctx, "experiment.Run", trace.WithAttributes(
		attribute.String("experiment", cfg.Experiment.Name),
	))
	defer func() { endSpan(span, err) }()
	logger := r.logger.With(log.ComponentKey, "experiment", log.ExperimentKey, cfg.Experiment.Name)
	if cfg.RandomState != nil {
		logger = logger.With(log.RandomSeedKey, *cfg.RandomState)
	}

	split, err := r.prepare(ctx, logger)
	if err != nil {
		return nil, err
	}

	template := pipeline.NewScaledForest(r.forestOptions()...)
	grid, err := modelselection.NewParamGrid(template, cfg.Search.ParamGrid)
	if err != nil {
		return nil, err
	}

	recorder := NewRecorder(r.client,
		WithCVPlot(cfg.Model.PlotCVResults),
		WithRecorderLogger(logger),
	)
	exp, err := recorder.EnsureExperiment(ctx, cfg.Experiment.Name)
	if err != nil {
		return nil, err
	}
	run, err := recorder.StartRun(ctx, exp, cfg.Experiment.RunName)
	if err != nil {
		return nil, err
	}
	logger = logger.With(log.RunIDKey, run.ID())

	defer func() {
		status := tracking.RunStatusFinished
		if err != nil {
			status = tracking.RunStatusFailed
		}
		if endErr := run.End(ctx, status); endErr != nil {
			err = errors.CombineErrors(err, errors.NewRecordingFailureError("end run", run.ID(), endErr))
			rep = nil
		}
	}()

	search := modelselection.NewGridSearchCV(template, grid, r.searchOptions(logger)...)
	result, err := search.Fit(ctx, split.XTrain, split.YTrain)
	if err != nil {
		logger.Error("Search failed", log.ErrAttrKey, err)
		return nil, err
	}

	recCtx, recSpan := tracer.Start(ctx, "experiment.record", trace.WithAttributes(
		attribute.String("tracking.run_id", run.ID()),
	))
	rec, err := recorder.Record(recCtx, run, result, split, cfg.Model.ArtifactPath, cfg.Model.RegisteredModelName)
	endSpan(recSpan, err)
	if err != nil {
		logger.Error("Recording failed", log.ErrAttrKey, err)
		return nil, err
	}

	elapsed := time.Since(start)
	logger.Info(fmt.Sprintf("...Training Done! --- Total training time: %s", elapsed),
		log.DurationSecondsKey, elapsed.Seconds(),
	)

	rep = &Report{
		RunID:        run.ID(),
		ExperimentID: run.ExperimentID(),
		TrainScore:   rec.TrainScore,
		TestScore:    rec.TestScore,
		BestParams:   result.BestParams,
		BestCVScore:  result.BestScore,
		ModelURI:     rec.ModelURI,
		Elapsed:      elapsed,
	}
	if rec.ModelVersion != nil {
		rep.ModelVersion = rec.ModelVersion.Version
	}
	return rep, nil
}

// prepare loads the dataset and splits it into train and test parts.
func (r *Runner) prepare(ctx context.Context, logger log.Logger) (split *dataset.Split, err error) {
	ctx, span := tracer.Start(ctx, "experiment.prepare", trace.WithAttributes(
		attribute.String("data.source", r.cfg.Data.URL),
	))
	defer func() { endSpan(span, err) }()

	logger.Info("Loading data", log.PhaseKey, log.PhaseLoading)
	ds, err := dataset.Load(ctx, r.cfg.Data.URL,
		dataset.WithHTTPClient(r.httpClient),
		dataset.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var opts []dataset.SplitOption
	if r.cfg.RandomState != nil {
		opts = append(opts, dataset.WithRandomState(*r.cfg.RandomState))
	}
	split, err = dataset.TrainTestSplit(ds, r.cfg.Data.TestSize, opts...)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("data.samples", ds.Rows()))
	return split, nil
}

// forestOptions keeps each forest single threaded; the search already fans
// out across candidates and folds.
func (r *Runner) forestOptions() []ensemble.Option {
	opts := []ensemble.Option{ensemble.WithNJobs(1)}
	if r.cfg.RandomState != nil {
		opts = append(opts, ensemble.WithRandomState(int64(*r.cfg.RandomState)))
	}
	return opts
}

func (r *Runner) searchOptions(logger log.Logger) []modelselection.SearchOption {
	sc := r.cfg.Search
	opts := []modelselection.SearchOption{
		modelselection.WithCV(sc.CV),
		modelselection.WithNJobs(sc.NJobs),
		modelselection.WithScoring(sc.Scoring),
		modelselection.WithVerbose(sc.Verbose),
		modelselection.WithLogger(logger),
	}
	if sc.Shuffle {
		seed := rand.Uint64()
		if r.cfg.RandomState != nil {
			seed = *r.cfg.RandomState
		}
		opts = append(opts, modelselection.WithShuffle(seed))
	}
	return opts
}
