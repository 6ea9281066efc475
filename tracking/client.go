package tracking

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
)

// Client is the entry point for recording experiments. It owns a metadata
// Store and an ArtifactStore; Close releases both.
type Client struct {
	store     Store
	artifacts ArtifactStore
	logger    log.Logger
	now       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used for run lifecycle messages.
func WithClientLogger(l log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient wraps the given stores.
func NewClient(store Store, artifacts ArtifactStore, opts ...ClientOption) *Client {
	c := &Client{
		store:     store,
		artifacts: artifacts,
		logger:    log.GetLogger().With(log.ComponentKey, "tracking"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens a SQLite store at storePath and an artifact store at
// artifactRoot, and returns a Client over them.
func Open(ctx context.Context, storePath, artifactRoot, credentialsFile string, opts ...ClientOption) (*Client, error) {
	store, err := OpenSQLiteStore(ctx, storePath)
	if err != nil {
		return nil, err
	}
	artifacts, err := OpenArtifactStore(ctx, artifactRoot, credentialsFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	return NewClient(store, artifacts, opts...), nil
}

// Close releases the stores.
func (c *Client) Close() error {
	return errors.CombineErrors(c.store.Close(), c.artifacts.Close())
}

// GetOrCreateExperiment returns the experiment called name, creating it on
// first use.
func (c *Client) GetOrCreateExperiment(ctx context.Context, name string) (*Experiment, error) {
	if name == "" {
		return nil, errors.NewValidationError("experiment", "name must not be empty", name)
	}
	exp, err := c.store.GetExperimentByName(ctx, name)
	if err == nil {
		return exp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	exp, err = c.store.CreateExperiment(ctx, name, name)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Experiment created",
		log.ExperimentKey, exp.Name,
		log.ExperimentIDKey, exp.ID,
	)
	return exp, nil
}

// StartRun opens a new RUNNING run in exp. The caller must End it.
func (c *Client) StartRun(ctx context.Context, exp *Experiment, name string) (*Run, error) {
	info, err := c.store.CreateRun(ctx, exp.ID, name, c.now())
	if err != nil {
		return nil, err
	}
	c.logger.Info("Run started",
		log.ExperimentKey, exp.Name,
		log.RunIDKey, info.ID,
	)
	return &Run{
		client:     c,
		info:       *info,
		artifactAt: path.Join(exp.ArtifactLocation, info.ID),
	}, nil
}

// GetRun returns the stored state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	return c.store.GetRun(ctx, runID)
}

// ListRuns returns the runs of an experiment, oldest first.
func (c *Client) ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error) {
	return c.store.ListRuns(ctx, experimentID)
}

// ListMetrics returns the metrics of a run in logging order.
func (c *Client) ListMetrics(ctx context.Context, runID string) ([]Metric, error) {
	return c.store.ListMetrics(ctx, runID)
}

// ListParams returns the parameters of a run.
func (c *Client) ListParams(ctx context.Context, runID string) (map[string]string, error) {
	return c.store.ListParams(ctx, runID)
}

// ListTags returns the tags of a run.
func (c *Client) ListTags(ctx context.Context, runID string) (map[string]string, error) {
	return c.store.ListTags(ctx, runID)
}

// ListArtifacts returns the artifacts of a run sorted by path.
func (c *Client) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	return c.store.ListArtifacts(ctx, runID)
}

// OpenArtifact reads back a stored artifact by its run-relative path.
func (c *Client) OpenArtifact(ctx context.Context, runID, artifactPath string) (io.ReadCloser, error) {
	info, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	exp, err := c.store.GetExperiment(ctx, info.ExperimentID)
	if err != nil {
		return nil, err
	}
	return c.artifacts.Open(ctx, path.Join(exp.ArtifactLocation, runID, artifactPath))
}

// RegisterModel adds a new version of the model called name, pointing at
// source. Versions start at 1 and increase by one per registration.
func (c *Client) RegisterModel(ctx context.Context, name, source, runID string) (*ModelVersion, error) {
	if name == "" {
		return nil, errors.NewValidationError("registered_model_name", "must not be empty", name)
	}
	mv, err := c.store.CreateModelVersion(ctx, name, source, runID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Model version registered",
		log.ModelNameKey, mv.Name,
		log.ModelVersionKey, mv.Version,
		log.RunIDKey, runID,
	)
	return mv, nil
}

// LatestVersion returns the newest registered version of name.
func (c *Client) LatestVersion(ctx context.Context, name string) (*ModelVersion, error) {
	return c.store.LatestModelVersion(ctx, name)
}
