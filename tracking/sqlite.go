package tracking

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is a Store backed by a single SQLite file. The schema is
// created and upgraded by golang-migrate from the embedded migrations.
type SQLiteStore struct {
	db     *sql.DB
	logger log.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the SQLite database at path and
// applies pending migrations. Use ":memory:" for a throwaway store.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// SQLite は単一ライター。:memory: は接続ごとに別DBになるため1本に固定する
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}

	s := &SQLiteStore{
		db:     db,
		logger: log.GetLogger().With(log.ComponentKey, "tracking"),
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "load embedded migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "create migrate instance")
	}
	m.Log = &migrateLogger{logger: s.logger}

	// m.Close() は下層のDB接続も閉じるため呼ばない
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct {
	logger log.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func notFound(err error, what, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s %q", what, key)
	}
	return errors.Wrapf(err, "query %s %q", what, key)
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name, artifactLocation string) (*Experiment, error) {
	e := &Experiment{
		ID:               uuid.NewString(),
		Name:             name,
		ArtifactLocation: artifactLocation,
		CreatedAt:        fromMillis(toMillis(time.Now())),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (experiment_id, name, artifact_location, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, e.ArtifactLocation, toMillis(e.CreatedAt))
	if err != nil {
		return nil, errors.Wrapf(err, "create experiment %q", name)
	}
	return e, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	return s.getExperiment(ctx, "experiment_id", id)
}

func (s *SQLiteStore) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	return s.getExperiment(ctx, "name", name)
}

func (s *SQLiteStore) getExperiment(ctx context.Context, column, key string) (*Experiment, error) {
	var e Experiment
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT experiment_id, name, artifact_location, created_at FROM experiments WHERE `+column+` = ?`, key).
		Scan(&e.ID, &e.Name, &e.ArtifactLocation, &created)
	if err != nil {
		return nil, notFound(err, "experiment", key)
	}
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, experimentID, name string, start time.Time) (*RunInfo, error) {
	r := &RunInfo{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		Name:         name,
		Status:       RunStatusRunning,
		StartTime:    fromMillis(toMillis(start)),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, experiment_id, name, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.ExperimentID, r.Name, string(r.Status), toMillis(r.StartTime))
	if err != nil {
		return nil, errors.Wrapf(err, "create run in experiment %s", experimentID)
	}
	return r, nil
}

const runColumns = `run_id, experiment_id, name, status, start_time, end_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunInfo, error) {
	var r RunInfo
	var status string
	var start int64
	var end sql.NullInt64
	if err := row.Scan(&r.ID, &r.ExperimentID, &r.Name, &status, &start, &end); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.StartTime = fromMillis(start)
	if end.Valid {
		r.EndTime = fromMillis(end.Int64)
	}
	return &r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err != nil {
		return nil, notFound(err, "run", runID)
	}
	return r, nil
}

// ListRuns returns the runs of an experiment, oldest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE experiment_id = ? ORDER BY start_time, rowid`, experimentID)
	if err != nil {
		return nil, errors.Wrapf(err, "list runs of experiment %s", experimentID)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, *r)
	}
	return out, errors.WithStack(rows.Err())
}

func (s *SQLiteStore) EndRun(ctx context.Context, runID string, status RunStatus, end time.Time) error {
	if !status.Terminal() {
		return errors.NewValidationError("status", "must be FINISHED, FAILED or KILLED", string(status))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ? WHERE run_id = ? AND status = ?`,
		string(status), toMillis(end), runID, string(RunStatusRunning))
	if err != nil {
		return errors.Wrapf(err, "end run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 既に終了済みなら何もしない。存在しない場合のみエラー
		if _, err := s.GetRun(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) LogMetric(ctx context.Context, runID string, m Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, key, value, step, timestamp) VALUES (?, ?, ?, ?, ?)`,
		runID, m.Key, m.Value, m.Step, toMillis(m.Timestamp))
	if err != nil {
		return errors.Wrapf(err, "log metric %q", m.Key)
	}
	return nil
}

func (s *SQLiteStore) LogParam(ctx context.Context, runID, key, value string) error {
	// パラメータは一度だけ記録できる
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)`, runID, key, value)
	if err != nil {
		return errors.Wrapf(err, "log param %q", key)
	}
	return nil
}

func (s *SQLiteStore) SetTag(ctx context.Context, runID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`, runID, key, value)
	if err != nil {
		return errors.Wrapf(err, "set tag %q", key)
	}
	return nil
}

func (s *SQLiteStore) LogArtifact(ctx context.Context, runID string, a Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, path, uri, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, path) DO UPDATE SET uri = excluded.uri`,
		runID, a.Path, a.URI, toMillis(time.Now()))
	if err != nil {
		return errors.Wrapf(err, "log artifact %q", a.Path)
	}
	return nil
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, runID string) ([]Metric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, step, timestamp FROM metrics WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list metrics of run %s", runID)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var ts int64
		if err := rows.Scan(&m.Key, &m.Value, &m.Step, &ts); err != nil {
			return nil, errors.Wrap(err, "scan metric")
		}
		m.Timestamp = fromMillis(ts)
		out = append(out, m)
	}
	return out, errors.WithStack(rows.Err())
}

func (s *SQLiteStore) listKV(ctx context.Context, table, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM `+table+` WHERE run_id = ?`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s of run %s", table, runID)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrapf(err, "scan %s", table)
		}
		out[k] = v
	}
	return out, errors.WithStack(rows.Err())
}

func (s *SQLiteStore) ListParams(ctx context.Context, runID string) (map[string]string, error) {
	return s.listKV(ctx, "params", runID)
}

func (s *SQLiteStore) ListTags(ctx context.Context, runID string) (map[string]string, error) {
	return s.listKV(ctx, "tags", runID)
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, uri FROM artifacts WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "list artifacts of run %s", runID)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Path, &a.URI); err != nil {
			return nil, errors.Wrap(err, "scan artifact")
		}
		out = append(out, a)
	}
	return out, errors.WithStack(rows.Err())
}

// CreateModelVersion registers name if needed and adds the next version.
func (s *SQLiteStore) CreateModelVersion(ctx context.Context, name, source, runID string) (*ModelVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	now := fromMillis(toMillis(time.Now()))
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO registered_models (name, created_at) VALUES (?, ?)`, name, toMillis(now)); err != nil {
		return nil, errors.Wrapf(err, "register model %q", name)
	}

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE name = ?`, name).Scan(&version); err != nil {
		return nil, errors.Wrapf(err, "next version of %q", name)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_versions (name, version, source, run_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, version, source, runID, toMillis(now)); err != nil {
		return nil, errors.Wrapf(err, "create version %d of %q", version, name)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit model version")
	}

	return &ModelVersion{Name: name, Version: version, Source: source, RunID: runID, CreatedAt: now}, nil
}

func (s *SQLiteStore) LatestModelVersion(ctx context.Context, name string) (*ModelVersion, error) {
	var mv ModelVersion
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, version, source, run_id, created_at FROM model_versions
		 WHERE name = ? ORDER BY version DESC LIMIT 1`, name).
		Scan(&mv.Name, &mv.Version, &mv.Source, &mv.RunID, &created)
	if err != nil {
		return nil, notFound(err, "registered model", name)
	}
	mv.CreatedAt = fromMillis(created)
	return &mv, nil
}
