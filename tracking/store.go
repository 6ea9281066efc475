package tracking

import (
	"context"
	"time"
)

// Store persists tracking records. Every write is independent: a failure
// leaves earlier writes in place and queryable.
type Store interface {
	CreateExperiment(ctx context.Context, name, artifactLocation string) (*Experiment, error)
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)

	CreateRun(ctx context.Context, experimentID, name string, start time.Time) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*RunInfo, error)
	ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error)
	// EndRun moves a RUNNING run to a terminal status. Ending an already
	// ended run is a no-op.
	EndRun(ctx context.Context, runID string, status RunStatus, end time.Time) error

	LogMetric(ctx context.Context, runID string, m Metric) error
	LogParam(ctx context.Context, runID, key, value string) error
	SetTag(ctx context.Context, runID, key, value string) error
	LogArtifact(ctx context.Context, runID string, a Artifact) error

	ListMetrics(ctx context.Context, runID string) ([]Metric, error)
	ListParams(ctx context.Context, runID string) (map[string]string, error)
	ListTags(ctx context.Context, runID string) (map[string]string, error)
	ListArtifacts(ctx context.Context, runID string) ([]Artifact, error)

	CreateModelVersion(ctx context.Context, name, source, runID string) (*ModelVersion, error)
	LatestModelVersion(ctx context.Context, name string) (*ModelVersion, error)

	Close() error
}
