// Package modelselection provides k-fold splitting, typed hyperparameter
// grids and an exhaustive cross-validated grid search over pipelines.
package modelselection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gridtrack/core/parallel"
	"github.com/YuminosukeSato/gridtrack/metrics"
	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
)

var tracer = otel.Tracer("github.com/YuminosukeSato/gridtrack/modelselection")

// SearchOption is a function that configures GridSearchCV
type SearchOption func(*GridSearchCV)

// WithCV sets the number of cross-validation folds (default 5)
func WithCV(k int) SearchOption {
	return func(gs *GridSearchCV) {
		gs.cv = k
	}
}

// WithNJobs sets the number of fits run concurrently. -1 uses all CPUs
func WithNJobs(n int) SearchOption {
	return func(gs *GridSearchCV) {
		gs.nJobs = n
	}
}

// WithScoring sets the scoring function by name (default "r2")
func WithScoring(name string) SearchOption {
	return func(gs *GridSearchCV) {
		gs.scoring = name
	}
}

// WithVerbose sets the progress verbosity: 1 logs the search banner,
// 2 adds one line per candidate, 3 adds one line per fold
func WithVerbose(v int) SearchOption {
	return func(gs *GridSearchCV) {
		gs.verbose = v
	}
}

// WithShuffle shuffles rows with the given seed before assigning folds
func WithShuffle(seed uint64) SearchOption {
	return func(gs *GridSearchCV) {
		gs.shuffle = true
		gs.seed = seed
	}
}

// WithLogger sets the logger used for progress and warnings
func WithLogger(l log.Logger) SearchOption {
	return func(gs *GridSearchCV) {
		gs.logger = l
	}
}

// GridSearchCV evaluates every combination of a ParamGrid with k-fold
// cross-validation and refits the best one on the full training data.
type GridSearchCV struct {
	template *pipeline.Pipeline
	grid     *ParamGrid

	cv      int
	nJobs   int
	scoring string
	verbose int
	shuffle bool
	seed    uint64
	logger  log.Logger
}

// NewGridSearchCV creates a grid search over template. The template itself is
// never fitted; every fit works on a clone.
func NewGridSearchCV(template *pipeline.Pipeline, grid *ParamGrid, opts ...SearchOption) *GridSearchCV {
	gs := &GridSearchCV{
		template: template,
		grid:     grid,
		cv:       5,
		nJobs:    1,
		scoring:  metrics.ScoringR2,
	}
	for _, opt := range opts {
		opt(gs)
	}
	if gs.logger == nil {
		gs.logger = log.GetLogger()
	}
	gs.logger = gs.logger.With(log.ComponentKey, "modelselection")
	return gs
}

// CVResult holds the cross-validation outcome of one candidate.
type CVResult struct {
	Params        Params
	FoldScores    []float64 // NaN for failed folds
	MeanScore     float64   // -Inf when any fold failed
	StdScore      float64
	Rank          int
	MeanFitTime   time.Duration
	Failed        bool
	FailureReason string
}

// SearchResult is the outcome of GridSearchCV.Fit.
type SearchResult struct {
	BestEstimator *pipeline.Pipeline // refit on the full training data
	BestParams    Params
	BestScore     float64
	BestIndex     int
	CVResults     []CVResult
	Scoring       string
	NSplits       int
	RefitTime     time.Duration
}

type foldData struct {
	XTrain, yTrain *mat.Dense
	XTest, yTest   *mat.Dense
}

func selectRows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	row := make([]float64, c)
	for i, r := range idx {
		mat.Row(row, r, m)
		out.SetRow(i, row)
	}
	return out
}

type foldOutcome struct {
	score   float64
	elapsed time.Duration
	err     error
}

// Fit runs the search. Grid and fold-count problems are reported before any
// estimator is fitted. A candidate whose fit fails on any fold is scored -Inf
// and reported through a FitFailedWarning; the search fails only when every
// candidate failed or the refit failed.
func (gs *GridSearchCV) Fit(ctx context.Context, X, y mat.Matrix) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "GridSearchCV.Fit", trace.WithAttributes(
		attribute.Int("search.folds", gs.cv),
		attribute.String("search.scoring", gs.scoring),
	))
	defer span.End()

	res, err := gs.fit(ctx, X, y)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("search.candidates", len(res.CVResults)),
		attribute.Float64("search.best_score", res.BestScore),
	)
	return res, nil
}

func (gs *GridSearchCV) fit(ctx context.Context, X, y mat.Matrix) (*SearchResult, error) {
	if gs.template == nil {
		return nil, errors.NewInvalidGridError("", "", "no pipeline to search over")
	}
	if gs.grid == nil {
		return nil, errors.NewInvalidGridError("", "", "no parameter grid")
	}
	if !gs.grid.compatible(gs.template) {
		return nil, errors.NewInvalidGridError("", "", "grid was validated against a different pipeline")
	}

	scorer, err := metrics.GetScorer(gs.scoring)
	if err != nil {
		return nil, err
	}

	rows, _ := X.Dims()
	yRows, _ := y.Dims()
	if rows != yRows {
		return nil, errors.NewDimensionError("GridSearchCV.Fit", rows, yRows, 0)
	}

	folds, err := NewKFold(gs.cv, gs.shuffle, gs.seed).Split(rows)
	if err != nil {
		return nil, err
	}

	data := make([]foldData, len(folds))
	for i, f := range folds {
		data[i] = foldData{
			XTrain: selectRows(X, f.TrainIndices),
			yTrain: selectRows(y, f.TrainIndices),
			XTest:  selectRows(X, f.TestIndices),
			yTest:  selectRows(y, f.TestIndices),
		}
	}

	combos := gs.grid.Combinations()
	nTasks := len(combos) * len(folds)
	workers := parallel.Workers(gs.nJobs, nTasks)
	searchCandidates.Set(float64(len(combos)))

	if gs.verbose >= 1 {
		gs.logger.Info(fmt.Sprintf("Fitting %d folds for each of %d candidates, totalling %d fits",
			len(folds), len(combos), nTasks),
			log.FoldsKey, len(folds),
			log.CandidatesKey, len(combos),
			log.WorkersKey, workers,
			log.ScoringKey, gs.scoring,
		)
	}

	outcomes := make([][]foldOutcome, len(combos))
	for i := range outcomes {
		outcomes[i] = make([]foldOutcome, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

schedule:
	for c := range combos {
		for f := range folds {
			if gctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					searchFits.WithLabelValues(outcomeCanceled).Inc()
					return err
				}
				out := gs.fitFold(combos[c], &data[f], scorer)
				outcomes[c][f] = out
				if out.err != nil {
					searchFits.WithLabelValues(outcomeFailed).Inc()
					errors.Warn(errors.NewFitFailedWarning(c, f, combos[c].String(), out.err))
				} else {
					searchFits.WithLabelValues(outcomeOK).Inc()
				}
				searchFitDuration.Observe(out.elapsed.Seconds())
				if gs.verbose >= 3 {
					gs.logFold(gctx, c, f, len(folds), combos[c], out)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "grid search interrupted")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "grid search interrupted")
	}

	results, lastErr := gs.aggregate(combos, outcomes)

	best := -1
	for i, r := range results {
		if r.Failed {
			continue
		}
		if best < 0 || r.MeanScore > results[best].MeanScore {
			best = i
		}
	}
	if best < 0 {
		return nil, errors.NewFitFailureError("GridSearchCV.Fit", len(combos), lastErr)
	}
	searchBestScore.Set(results[best].MeanScore)

	refitStart := time.Now()
	estimator := gs.template.ClonePipeline()
	err = errors.SafeExecute("GridSearchCV.refit", func() error {
		if err := estimator.SetParams(combos[best]); err != nil {
			return err
		}
		return estimator.Fit(X, y)
	})
	if err != nil {
		searchFits.WithLabelValues(outcomeFailed).Inc()
		return nil, errors.NewFitFailureError("GridSearchCV.refit", 1, err)
	}
	searchFits.WithLabelValues(outcomeOK).Inc()
	refitTime := time.Since(refitStart)

	if gs.verbose >= 1 {
		gs.logger.Info("Grid search finished",
			log.ParamsKey, combos[best].String(),
			log.ScoreKey, results[best].MeanScore,
			log.DurationMsKey, refitTime.Milliseconds(),
		)
	}

	return &SearchResult{
		BestEstimator: estimator,
		BestParams:    combos[best],
		BestScore:     results[best].MeanScore,
		BestIndex:     best,
		CVResults:     results,
		Scoring:       gs.scoring,
		NSplits:       len(folds),
		RefitTime:     refitTime,
	}, nil
}

// fitFold clones the template, applies params, fits on the training part of
// the fold and scores the held-out part. Panics become FitFailureErrors.
func (gs *GridSearchCV) fitFold(params Params, fd *foldData, scorer metrics.ScoreFunc) foldOutcome {
	start := time.Now()
	var score float64
	err := errors.SafeExecute("GridSearchCV.fitFold", func() error {
		est := gs.template.ClonePipeline()
		if err := est.SetParams(params); err != nil {
			return err
		}
		if err := est.Fit(fd.XTrain, fd.yTrain); err != nil {
			return err
		}
		pred, err := est.Predict(fd.XTest)
		if err != nil {
			return err
		}
		s, err := scorer(fd.yTest, pred)
		if err != nil {
			return err
		}
		if math.IsNaN(s) {
			return errors.NewValueError("GridSearchCV.score", "score is NaN")
		}
		score = s
		return nil
	})
	var pe *errors.PanicError
	if errors.As(err, &pe) {
		err = errors.NewFitFailureError("GridSearchCV.fitFold", 1, err)
	}
	return foldOutcome{score: score, elapsed: time.Since(start), err: err}
}

func (gs *GridSearchCV) logFold(ctx context.Context, c, f, nFolds int, params Params, out foldOutcome) {
	if !gs.logger.Enabled(ctx, log.LevelInfo) && out.err == nil {
		return
	}
	msg := fmt.Sprintf("[CV %d/%d] END %s;", f+1, nFolds, params)
	if out.err != nil {
		gs.logger.Warn(msg+" fit failed",
			log.CandidateKey, c,
			log.FoldKey, f,
			log.DurationMsKey, out.elapsed.Milliseconds(),
			log.ErrAttrKey, out.err,
		)
		return
	}
	gs.logger.Info(fmt.Sprintf("%s score=%.3f total time=%.1fs", msg, out.score, out.elapsed.Seconds()),
		log.CandidateKey, c,
		log.FoldKey, f,
		log.ScoreKey, out.score,
		log.DurationMsKey, out.elapsed.Milliseconds(),
	)
}

// aggregate computes per-candidate statistics and ranks. It returns the last
// fold error seen, for reporting when every candidate failed.
func (gs *GridSearchCV) aggregate(combos []Params, outcomes [][]foldOutcome) ([]CVResult, error) {
	results := make([]CVResult, len(combos))
	var lastErr error

	for c := range combos {
		r := CVResult{Params: combos[c], FoldScores: make([]float64, len(outcomes[c]))}
		var total time.Duration
		for f, out := range outcomes[c] {
			total += out.elapsed
			if out.err != nil {
				r.FoldScores[f] = math.NaN()
				if !r.Failed {
					r.Failed = true
					r.FailureReason = out.err.Error()
				}
				lastErr = out.err
				continue
			}
			r.FoldScores[f] = out.score
		}
		r.MeanFitTime = total / time.Duration(len(outcomes[c]))

		if r.Failed {
			r.MeanScore = math.Inf(-1)
			r.StdScore = math.NaN()
		} else {
			r.MeanScore, r.StdScore = stat.PopMeanStdDev(r.FoldScores, nil)
		}
		results[c] = r
	}

	// rank 1 is best; ties share the lowest rank
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for pos, idx := range order {
		if pos > 0 && results[order[pos-1]].MeanScore == results[idx].MeanScore {
			results[idx].Rank = results[order[pos-1]].Rank
		} else {
			results[idx].Rank = pos + 1
		}
	}

	if gs.verbose >= 2 {
		for c, r := range results {
			gs.logger.Info("Candidate evaluated",
				log.CandidateKey, c,
				log.ParamsKey, r.Params.String(),
				log.ScoreKey, r.MeanScore,
				"std_score", r.StdScore,
				"rank", r.Rank,
				"failed", r.Failed,
			)
		}
	}

	return results, lastErr
}
