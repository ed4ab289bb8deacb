package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/galsynth/pkg/core"
)

// RecordStage stores one stage outcome. ID and StartedAt are filled in when
// empty.
func (s *SQLiteStore) RecordStage(stage *core.StageRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if stage.ID == "" {
		stage.ID = generateID()
	}
	if stage.StartedAt.IsZero() {
		stage.StartedAt = time.Now().UTC()
	}

	var errorPtr *string
	if stage.Error != "" {
		errorPtr = &stage.Error
	}

	_, err := s.db.Exec(
		`INSERT INTO stage_runs (id, run_id, stage, status, started_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stage.ID, stage.RunID, string(stage.Stage), string(stage.Status), stage.StartedAt, stage.DurationMS, errorPtr,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", stage.Stage, err)
	}
	return nil
}

// GetStageRuns retrieves the stages of a run in execution order.
func (s *SQLiteStore) GetStageRuns(runID string) ([]*core.StageRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, stage, status, started_at, duration_ms, error
		 FROM stage_runs WHERE run_id = ? ORDER BY started_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage runs: %w", err)
	}
	defer rows.Close()

	var stages []*core.StageRun
	for rows.Next() {
		sr := &core.StageRun{}
		var stage, status string
		var errMsg sql.NullString

		if err := rows.Scan(&sr.ID, &sr.RunID, &stage, &status, &sr.StartedAt, &sr.DurationMS, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		sr.Stage = core.Stage(stage)
		sr.Status = core.StageStatus(status)
		if errMsg.Valid {
			sr.Error = errMsg.String
		}
		stages = append(stages, sr)
	}
	return stages, rows.Err()
}
