// Package tracking records experiments, runs, metrics, parameters, tags,
// artifacts and registered model versions.
//
// There is no process-global "current run": callers hold a Client and the
// Run values it returns, and pass them explicitly.
package tracking

import (
	"time"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses. A run starts RUNNING and ends in exactly one terminal state.
const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// Terminal reports whether s ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed || s == RunStatusKilled
}

// ErrNotFound is returned when an experiment, run or model does not exist.
var ErrNotFound = errors.New("tracking: not found")

// Experiment groups runs under a unique name.
type Experiment struct {
	ID               string
	Name             string
	ArtifactLocation string
	CreatedAt        time.Time
}

// RunInfo is the stored state of a run.
type RunInfo struct {
	ID           string
	ExperimentID string
	Name         string
	Status       RunStatus
	StartTime    time.Time
	EndTime      time.Time // zero while running
}

// Metric is one logged metric value.
type Metric struct {
	Key       string
	Value     float64
	Step      int64
	Timestamp time.Time
}

// Artifact is a stored file attached to a run.
type Artifact struct {
	Path string // relative to the run's artifact root
	URI  string // where the bytes live
}

// ModelVersion is one registered version of a named model.
type ModelVersion struct {
	Name      string
	Version   int
	Source    string // artifact URI
	RunID     string
	CreatedAt time.Time
}
