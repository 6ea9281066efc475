package tracking

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(context.Background(), filepath.Join(dir, "tracking.db"), filepath.Join(dir, "artifacts"), "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenSQLiteStoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tracking.db")

	s1, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("first open error = %v", err)
	}
	exp, err := s1.CreateExperiment(ctx, "exp", "exp")
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	s1.Close()

	// 2回目はマイグレーション済みのDBを開く
	s2, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("second open error = %v", err)
	}
	defer s2.Close()

	got, err := s2.GetExperimentByName(ctx, "exp")
	if err != nil {
		t.Fatalf("GetExperimentByName() error = %v", err)
	}
	if got.ID != exp.ID {
		t.Errorf("experiment ID = %s, want %s", got.ID, exp.ID)
	}
}

func TestGetExperimentNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer s.Close()

	_, err = s.GetExperimentByName(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	_, err = s.LatestModelVersion(ctx, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestModelVersion error = %v, want ErrNotFound", err)
	}
}

func TestGetOrCreateExperiment(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	first, err := c.GetOrCreateExperiment(ctx, "hyperparameter_tuning")
	if err != nil {
		t.Fatalf("GetOrCreateExperiment() error = %v", err)
	}
	second, err := c.GetOrCreateExperiment(ctx, "hyperparameter_tuning")
	if err != nil {
		t.Fatalf("GetOrCreateExperiment() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created a new experiment: %s != %s", second.ID, first.ID)
	}

	if _, err := c.GetOrCreateExperiment(ctx, ""); err == nil {
		t.Error("expected error for empty experiment name")
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	exp, err := c.GetOrCreateExperiment(ctx, "exp")
	if err != nil {
		t.Fatal(err)
	}
	run, err := c.StartRun(ctx, exp, "")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if run.Info().Status != RunStatusRunning {
		t.Errorf("status = %s, want RUNNING", run.Info().Status)
	}

	if err := run.LogMetric(ctx, "Train Score", 0.9); err != nil {
		t.Fatalf("LogMetric() error = %v", err)
	}
	if err := run.LogMetric(ctx, "Test Score", 0.8); err != nil {
		t.Fatalf("LogMetric() error = %v", err)
	}
	if err := run.LogParams(ctx, map[string]string{"cv": "2", "scoring": "r2"}); err != nil {
		t.Fatalf("LogParams() error = %v", err)
	}
	if err := run.LogParam(ctx, "cv", "3"); err == nil {
		t.Error("expected error when logging the same param twice")
	}
	if err := run.SetTag(ctx, "estimator", "a"); err != nil {
		t.Fatal(err)
	}
	if err := run.SetTag(ctx, "estimator", "b"); err != nil {
		t.Fatalf("SetTag() overwrite error = %v", err)
	}
	art, err := run.LogArtifact(ctx, "model/model.gob", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("LogArtifact() error = %v", err)
	}
	if !strings.HasPrefix(art.URI, "file://") {
		t.Errorf("artifact URI = %s, want file:// prefix", art.URI)
	}

	if err := run.End(ctx, RunStatusFinished); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	// 2回目の End は何もしない
	if err := run.End(ctx, RunStatusFailed); err != nil {
		t.Errorf("second End() error = %v", err)
	}
	if err := run.LogMetric(ctx, "late", 1); !errors.Is(err, errors.ErrRunClosed) {
		t.Errorf("LogMetric after End error = %v, want ErrRunClosed", err)
	}

	info, err := c.GetRun(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != RunStatusFinished {
		t.Errorf("stored status = %s, want FINISHED", info.Status)
	}
	if info.EndTime.IsZero() {
		t.Error("stored end time is zero")
	}

	metrics, err := c.ListMetrics(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 2 || metrics[0].Key != "Train Score" || metrics[1].Key != "Test Score" {
		t.Errorf("metrics = %+v", metrics)
	}

	params, _ := c.ListParams(ctx, run.ID())
	if params["cv"] != "2" || params["scoring"] != "r2" {
		t.Errorf("params = %v", params)
	}
	tags, _ := c.ListTags(ctx, run.ID())
	if tags["estimator"] != "b" {
		t.Errorf("tag estimator = %q, want b", tags["estimator"])
	}

	arts, _ := c.ListArtifacts(ctx, run.ID())
	if len(arts) != 1 || arts[0].Path != "model/model.gob" {
		t.Fatalf("artifacts = %+v", arts)
	}
	rc, err := c.OpenArtifact(ctx, run.ID(), "model/model.gob")
	if err != nil {
		t.Fatalf("OpenArtifact() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "payload" {
		t.Errorf("artifact body = %q", body)
	}
}

func TestEndRejectsNonTerminalStatus(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	exp, _ := c.GetOrCreateExperiment(ctx, "exp")
	run, err := c.StartRun(ctx, exp, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := run.End(ctx, RunStatusRunning); err == nil {
		t.Error("expected error for RUNNING as end status")
	}
	if err := run.End(ctx, RunStatusFailed); err != nil {
		t.Fatalf("End(FAILED) error = %v", err)
	}
	info, _ := c.GetRun(ctx, run.ID())
	if info.Status != RunStatusFailed {
		t.Errorf("status = %s, want FAILED", info.Status)
	}
}

func TestEndSurvivesCanceledContext(t *testing.T) {
	c := newTestClient(t)
	exp, _ := c.GetOrCreateExperiment(context.Background(), "exp")
	run, err := c.StartRun(context.Background(), exp, "")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run.End(ctx, RunStatusKilled); err != nil {
		t.Fatalf("End() with canceled context error = %v", err)
	}
	info, _ := c.GetRun(context.Background(), run.ID())
	if info.Status != RunStatusKilled {
		t.Errorf("status = %s, want KILLED", info.Status)
	}
}

func TestRegisterModelIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	exp, _ := c.GetOrCreateExperiment(ctx, "exp")

	for want := 1; want <= 3; want++ {
		run, err := c.StartRun(ctx, exp, "")
		if err != nil {
			t.Fatal(err)
		}
		mv, err := c.RegisterModel(ctx, "random_forest", "file:///m.gob", run.ID())
		if err != nil {
			t.Fatalf("RegisterModel() error = %v", err)
		}
		if mv.Version != want {
			t.Errorf("version = %d, want %d", mv.Version, want)
		}
		run.End(ctx, RunStatusFinished)
	}

	runs, err := c.ListRuns(ctx, exp.ID)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	for _, r := range runs {
		if r.Status != RunStatusFinished {
			t.Errorf("run %s status = %s, want FINISHED", r.ID, r.Status)
		}
	}

	latest, err := c.LatestVersion(ctx, "random_forest")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != 3 {
		t.Errorf("latest version = %d, want 3", latest.Version)
	}

	if _, err := c.RegisterModel(ctx, "", "x", "y"); err == nil {
		t.Error("expected error for empty model name")
	}
}

func TestLocalArtifactStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenArtifactStore(ctx, "file://"+t.TempDir(), "")
	if err != nil {
		t.Fatalf("OpenArtifactStore() error = %v", err)
	}
	local, ok := store.(*LocalArtifactStore)
	if !ok {
		t.Fatalf("store type = %T, want *LocalArtifactStore", store)
	}

	tests := []struct {
		name    string
		key     string
		wantErr bool
		wantRel string
	}{
		{name: "simple", key: "a/b.txt", wantRel: "a/b.txt"},
		{name: "parent segments are clamped to root", key: "../../escape.txt", wantRel: "escape.txt"},
		{name: "empty key", key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := local.Put(ctx, tt.key, strings.NewReader("x"))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			want := "file://" + filepath.ToSlash(filepath.Join(local.Root(), tt.wantRel))
			if uri != want {
				t.Errorf("uri = %s, want %s", uri, want)
			}
		})
	}

	if _, err := local.Open(ctx, "missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNewGCSArtifactStoreRequiresBucket(t *testing.T) {
	_, err := NewGCSArtifactStore(context.Background(), "gs://", "")
	if err == nil {
		t.Error("expected error for missing bucket")
	}
	_, err = NewGCSArtifactStore(context.Background(), "gs://bucket/prefix", filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Error("expected error for missing credentials file")
	}
}
