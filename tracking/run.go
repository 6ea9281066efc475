package tracking

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
)

// Run is an open tracking run. All logging goes through the Run value;
// after End every logging method fails with errors.ErrRunClosed.
//
// Run is safe for concurrent use.
type Run struct {
	client     *Client
	artifactAt string

	mu     sync.Mutex
	info   RunInfo
	closed bool
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.info.ID
}

// ExperimentID returns the owning experiment.
func (r *Run) ExperimentID() string {
	return r.info.ExperimentID
}

// Info returns a snapshot of the run state as known to this process.
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

func (r *Run) checkOpen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Wrapf(errors.ErrRunClosed, "run %s", r.info.ID)
	}
	return nil
}

// LogMetric records a metric value at step 0.
func (r *Run) LogMetric(ctx context.Context, key string, value float64) error {
	return r.LogMetricStep(ctx, key, value, 0)
}

// LogMetricStep records a metric value at the given step.
func (r *Run) LogMetricStep(ctx context.Context, key string, value float64, step int64) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.store.LogMetric(ctx, r.info.ID, Metric{
		Key:       key,
		Value:     value,
		Step:      step,
		Timestamp: r.client.now(),
	})
}

// LogParam records a parameter. A key can be logged once per run.
func (r *Run) LogParam(ctx context.Context, key, value string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.store.LogParam(ctx, r.info.ID, key, value)
}

// LogParams records several parameters in key order and stops at the first
// failure.
func (r *Run) LogParams(ctx context.Context, params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := r.LogParam(ctx, k, params[k]); err != nil {
			return err
		}
	}
	return nil
}

// SetTag sets or replaces a tag.
func (r *Run) SetTag(ctx context.Context, key, value string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.store.SetTag(ctx, r.info.ID, key, value)
}

// LogArtifact stores the contents of src at artifactPath, relative to the
// run's artifact root, and records it on the run.
func (r *Run) LogArtifact(ctx context.Context, artifactPath string, src io.Reader) (Artifact, error) {
	if err := r.checkOpen(); err != nil {
		return Artifact{}, err
	}
	rel, err := cleanKey(artifactPath)
	if err != nil {
		return Artifact{}, err
	}
	uri, err := r.client.artifacts.Put(ctx, path.Join(r.artifactAt, rel), src)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{Path: rel, URI: uri}
	if err := r.client.store.LogArtifact(ctx, r.info.ID, a); err != nil {
		return Artifact{}, err
	}
	r.client.logger.Debug("Artifact logged",
		log.RunIDKey, r.info.ID,
		log.ArtifactKey, a.URI,
	)
	return a, nil
}

// LogArtifactFunc buffers what write produces and stores it like
// LogArtifact. Nothing is stored when write fails.
func (r *Run) LogArtifactFunc(ctx context.Context, artifactPath string, write func(io.Writer) error) (Artifact, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return Artifact{}, errors.Wrapf(err, "render artifact %s", artifactPath)
	}
	return r.LogArtifact(ctx, artifactPath, &buf)
}

// End closes the run with a terminal status. Only the first call has an
// effect; later calls return nil.
func (r *Run) End(ctx context.Context, status RunStatus) error {
	if !status.Terminal() {
		return errors.NewValidationError("status", "must be FINISHED, FAILED or KILLED", string(status))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	end := r.client.now()
	r.info.Status = status
	r.info.EndTime = end
	r.mu.Unlock()

	// 終了処理は呼び出し元のキャンセルに関係なく完了させる
	if err := r.client.store.EndRun(context.WithoutCancel(ctx), r.info.ID, status, end); err != nil {
		return err
	}
	r.client.logger.Info("Run ended",
		log.RunIDKey, r.info.ID,
		log.RunStatusKey, string(status),
	)
	return nil
}
