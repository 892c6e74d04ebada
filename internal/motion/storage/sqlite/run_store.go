package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// AnalysisRunStore manages persistence for analysis runs and run tracks.
// The schema is created by the db package's migrations.
type AnalysisRunStore struct {
	db *sql.DB
}

// NewAnalysisRunStore creates an AnalysisRunStore backed by the given database.
func NewAnalysisRunStore(db *sql.DB) *AnalysisRunStore {
	return &AnalysisRunStore{db: db}
}

// InsertRun records a newly started run.
func (s *AnalysisRunStore) InsertRun(run *AnalysisRun) error {
	_, err := s.db.Exec(`
		INSERT INTO analysis_runs (run_id, created_at, source_path, frame_count, params_json, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.CreatedAt.Format(time.RFC3339Nano),
		run.SourcePath,
		run.FrameCount,
		string(run.ParamsJSON),
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis run %s: %w", run.RunID, err)
	}
	return nil
}

// CompleteRun marks a run as completed and writes its final statistics.
func (s *AnalysisRunStore) CompleteRun(runID string, stats *AnalysisStats) error {
	res, err := s.db.Exec(`
		UPDATE analysis_runs
		SET status = 'completed',
		    duration_ms = ?,
		    total_features = ?,
		    total_candidates = ?,
		    total_inliers = ?,
		    total_transforms = ?,
		    chain_holes = ?,
		    total_tracks = ?
		WHERE run_id = ?`,
		stats.DurationMs,
		stats.TotalFeatures,
		stats.TotalCandidates,
		stats.TotalInliers,
		stats.TotalTransforms,
		stats.ChainHoles,
		stats.TotalTracks,
		runID,
	)
	if err != nil {
		return fmt.Errorf("completing analysis run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("completing analysis run %s: no such run", runID)
	}
	return nil
}

// UpdateRunStatus sets a run's status and optional error message.
func (s *AnalysisRunStore) UpdateRunStatus(runID, status, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE analysis_runs SET status = ?, error_message = ? WHERE run_id = ?`,
		status, errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("updating analysis run %s status: %w", runID, err)
	}
	return nil
}

// InsertRunTrack records one track produced by a run.
func (s *AnalysisRunStore) InsertRunTrack(rt RunTrack) error {
	_, err := s.db.Exec(`
		INSERT INTO run_tracks (run_id, track_id, start_index, length, points_json)
		VALUES (?, ?, ?, ?, ?)`,
		rt.RunID, rt.TrackID, rt.StartIndex, rt.Length, string(rt.PointsJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run track %d for run %s: %w", rt.TrackID, rt.RunID, err)
	}
	return nil
}

// GetRun fetches a single run by ID.
func (s *AnalysisRunStore) GetRun(runID string) (*AnalysisRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_at, source_path, frame_count, params_json, status, COALESCE(error_message, '')
		FROM analysis_runs WHERE run_id = ?`, runID)

	var run AnalysisRun
	var createdAt, paramsJSON string
	err := row.Scan(&run.RunID, &createdAt, &run.SourcePath, &run.FrameCount,
		&paramsJSON, &run.Status, &run.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("fetching analysis run %s: %w", runID, err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for run %s: %w", runID, err)
	}
	run.ParamsJSON = []byte(paramsJSON)
	return &run, nil
}

// GetRunStats fetches the final statistics of a terminated run. Columns
// are zero for runs still in flight.
func (s *AnalysisRunStore) GetRunStats(runID string) (*AnalysisStats, error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(duration_ms, 0), COALESCE(total_features, 0),
		       COALESCE(total_candidates, 0), COALESCE(total_inliers, 0),
		       COALESCE(total_transforms, 0), COALESCE(chain_holes, 0),
		       COALESCE(total_tracks, 0)
		FROM analysis_runs WHERE run_id = ?`, runID)

	var stats AnalysisStats
	err := row.Scan(&stats.DurationMs, &stats.TotalFeatures, &stats.TotalCandidates,
		&stats.TotalInliers, &stats.TotalTransforms, &stats.ChainHoles, &stats.TotalTracks)
	if err != nil {
		return nil, fmt.Errorf("fetching stats for run %s: %w", runID, err)
	}
	return &stats, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *AnalysisRunStore) ListRuns(limit int) ([]AnalysisRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at, source_path, frame_count, params_json, status, COALESCE(error_message, '')
		FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var run AnalysisRun
		var createdAt, paramsJSON string
		if err := rows.Scan(&run.RunID, &createdAt, &run.SourcePath, &run.FrameCount,
			&paramsJSON, &run.Status, &run.ErrorMessage); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for run %s: %w", run.RunID, err)
		}
		run.ParamsJSON = []byte(paramsJSON)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRunTracks returns all tracks persisted for a run, in track ID order.
func (s *AnalysisRunStore) GetRunTracks(runID string) ([]RunTrack, error) {
	rows, err := s.db.Query(`
		SELECT run_id, track_id, start_index, length, points_json
		FROM run_tracks WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing tracks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var tracks []RunTrack
	for rows.Next() {
		var rt RunTrack
		var points string
		if err := rows.Scan(&rt.RunID, &rt.TrackID, &rt.StartIndex, &rt.Length, &points); err != nil {
			return nil, err
		}
		rt.PointsJSON = []byte(points)
		tracks = append(tracks, rt)
	}
	return tracks, rows.Err()
}
