package state

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var testPos = core.Position{RA: 150.1, Dec: 2.2}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "stage_runs"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}

	v, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Migrating twice is a no-op.
	assert.NoError(t, store.InitSchema())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	_, err := store.CreateRun("x", testPos)
	assert.Error(t, err)
	_, err = store.ListRuns(10)
	assert.Error(t, err)
	assert.Error(t, store.RecordStage(&core.StageRun{}))
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		status  core.RunStatus
		errMsg  string
		wantErr string
	}{
		{name: "completed", status: core.RunStatusCompleted},
		{name: "failed", status: core.RunStatusFailed, errMsg: "stage fit failed", wantErr: "stage fit failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun("SN 2019abc", testPos)
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, core.RunStatusRunning, run.Status)

			require.NoError(t, store.CompleteRun(run.ID, tt.status, tt.errMsg))

			got, err := store.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, "SN 2019abc", got.SourceName)
			assert.InDelta(t, 150.1, got.RA, 1e-12)
			assert.InDelta(t, 2.2, got.Dec, 1e-12)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.wantErr, got.Error)
			require.NotNil(t, got.CompletedAt)
			assert.False(t, got.CompletedAt.Before(got.StartedAt))
		})
	}
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	assert.ErrorContains(t, err, "run not found")
	assert.ErrorContains(t, store.CompleteRun("missing", core.RunStatusCompleted, ""), "run not found")

	latest, err := store.GetLatestRun("nobody")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLiteStore_ListAndLatest(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for _, src := range []string{"a", "b", "a"} {
		run, err := store.CreateRun(src, testPos)
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	latest, err := store.GetLatestRun("a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)
}

func TestSQLiteStore_Stages(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("src", testPos)
	require.NoError(t, err)

	start := time.Now().UTC()
	stages := []*core.StageRun{
		{RunID: run.ID, Stage: core.StageAcquire, Status: core.StageStatusCached, StartedAt: start},
		{RunID: run.ID, Stage: core.StageFit, Status: core.StageStatusSuccess, StartedAt: start.Add(time.Second), DurationMS: 1200},
		{RunID: run.ID, Stage: core.StageAnalyse, Status: core.StageStatusFailed, StartedAt: start.Add(2 * time.Second), Error: "boom"},
	}
	for _, s := range stages {
		require.NoError(t, store.RecordStage(s))
		assert.NotEmpty(t, s.ID)
	}

	got, err := store.GetStageRuns(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, core.StageAcquire, got[0].Stage)
	assert.Equal(t, core.StageStatusCached, got[0].Status)
	assert.Equal(t, int64(1200), got[1].DurationMS)
	assert.Equal(t, "boom", got[2].Error)

	other, err := store.GetStageRuns("other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStore_StageRequiresRun(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordStage(&core.StageRun{RunID: "missing", Stage: core.StageFit, Status: core.StageStatusSuccess})
	assert.Error(t, err)
}

func TestSQLiteStore_DriverErrors(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		call      func(s *SQLiteStore) error
		errMsg    string
	}{
		{
			name: "create run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("disk full"))
			},
			call: func(s *SQLiteStore) error {
				_, err := s.CreateRun("x", testPos)
				return err
			},
			errMsg: "failed to create run: disk full",
		},
		{
			name: "list runs",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnError(errors.New("locked"))
			},
			call: func(s *SQLiteStore) error {
				_, err := s.ListRuns(5)
				return err
			},
			errMsg: "failed to list runs: locked",
		},
		{
			name: "record stage",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO stage_runs").WillReturnError(errors.New("constraint"))
			},
			call: func(s *SQLiteStore) error {
				return s.RecordStage(&core.StageRun{RunID: "r", Stage: core.StageFit})
			},
			errMsg: "failed to record stage fit: constraint",
		},
		{
			name: "complete missing run",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE runs").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			call: func(s *SQLiteStore) error {
				return s.CompleteRun("r", core.RunStatusCompleted, "")
			},
			errMsg: "run not found: r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			err = tt.call(NewWithDB(db, nil))
			assert.EqualError(t, err, tt.errMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
