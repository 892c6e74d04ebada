package sqlite

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/egomotion.report/internal/monitoring"
	"github.com/banshee-data/egomotion.report/internal/motion"
	"github.com/banshee-data/egomotion.report/internal/timeutil"
)

// TrackSource yields the tracks to persist when a run completes. It is
// satisfied by *motion.Pipeline.
type TrackSource interface {
	GetTracks() []motion.Track
}

// RunManager records pipeline run lifecycle events into the analysis-run
// store. It implements motion.RunObserver and is safe for concurrent use.
type RunManager struct {
	mu         sync.RWMutex
	store      *AnalysisRunStore
	sourcePath string
	tracks     TrackSource
	clock      timeutil.Clock

	currentRun *AnalysisRun
	startTime  time.Time
}

// NewRunManager creates a manager persisting runs over the frames at
// sourcePath.
func NewRunManager(db *sql.DB, sourcePath string) *RunManager {
	return &RunManager{
		store:      NewAnalysisRunStore(db),
		sourcePath: sourcePath,
		clock:      timeutil.RealClock{},
	}
}

// SetClock replaces the wall clock, for tests that assert run durations.
func (m *RunManager) SetClock(c timeutil.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = c
}

// SetTrackSource wires the source of completed tracks, typically the
// pipeline itself. Must be called before the first run completes for
// tracks to be persisted.
func (m *RunManager) SetTrackSource(ts TrackSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = ts
}

// RunStarted opens a new run record.
func (m *RunManager) RunStarted(params motion.Params, frameCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paramsJSON, err := FromParams(params).ToJSON()
	if err != nil {
		monitoring.Logf("[RunManager] Failed to serialize run params: %v", err)
		return
	}

	runID := uuid.New().String()
	run := &AnalysisRun{
		RunID:      runID,
		CreatedAt:  m.clock.Now(),
		SourcePath: m.sourcePath,
		FrameCount: frameCount,
		ParamsJSON: paramsJSON,
		Status:     "running",
	}
	if err := m.store.InsertRun(run); err != nil {
		monitoring.Logf("[RunManager] Failed to insert run: %v", err)
		return
	}

	m.currentRun = run
	m.startTime = m.clock.Now()
	monitoring.Logf("[RunManager] Started run %s for %s (%d frames)", runID, m.sourcePath, frameCount)
}

// RunCompleted finalizes the current run with statistics and persists its
// tracks.
func (m *RunManager) RunCompleted(stats motion.RunStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return
	}
	runID := m.currentRun.RunID

	analysisStats := &AnalysisStats{
		DurationMs:      m.clock.Since(m.startTime).Milliseconds(),
		TotalFeatures:   stats.Features,
		TotalCandidates: stats.Candidates,
		TotalInliers:    stats.Inliers,
		TotalTransforms: stats.Transforms,
		ChainHoles:      stats.Holes,
		TotalTracks:     stats.Tracks,
	}
	if err := m.store.CompleteRun(runID, analysisStats); err != nil {
		monitoring.Logf("[RunManager] Failed to complete run %s: %v", runID, err)
	}

	if m.tracks != nil {
		persisted := 0
		for _, track := range m.tracks.GetTracks() {
			rt, err := RunTrackFromTrack(runID, track)
			if err != nil {
				monitoring.Logf("[RunManager] Failed to serialize track %d: %v", track.ID, err)
				continue
			}
			if err := m.store.InsertRunTrack(rt); err != nil {
				monitoring.Logf("[RunManager] Failed to insert run track %d: %v", track.ID, err)
				continue
			}
			persisted++
		}
		monitoring.Logf("[RunManager] Persisted %d tracks for run %s", persisted, runID)
	}

	monitoring.Logf("[RunManager] Completed run %s: %d frames, %d transforms, %d tracks in %dms",
		runID, stats.Frames, stats.Transforms, stats.Tracks, analysisStats.DurationMs)
	m.currentRun = nil
}

// RunCancelled marks the current run as cancelled.
func (m *RunManager) RunCancelled(stats motion.RunStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return
	}
	runID := m.currentRun.RunID
	if err := m.store.UpdateRunStatus(runID, "cancelled", ""); err != nil {
		monitoring.Logf("[RunManager] Failed to mark run %s cancelled: %v", runID, err)
	}
	monitoring.Logf("[RunManager] Cancelled run %s after %d frames", runID, stats.Frames)
	m.currentRun = nil
}

// RunFailed marks the current run (if any) as failed with the error text.
func (m *RunManager) RunFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		// Input validation failures arrive before RunStarted; there is
		// nothing to update.
		monitoring.Logf("[RunManager] Run rejected before start: %v", err)
		return
	}
	runID := m.currentRun.RunID
	if updateErr := m.store.UpdateRunStatus(runID, "failed", err.Error()); updateErr != nil {
		monitoring.Logf("[RunManager] Failed to mark run %s failed: %v", runID, updateErr)
	}
	monitoring.Logf("[RunManager] Failed run %s: %v", runID, err)
	m.currentRun = nil
}

// IsRunActive returns true if there's an open run record.
func (m *RunManager) IsRunActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentRun != nil
}

// CurrentRunID returns the open run's ID, or empty string if none.
func (m *RunManager) CurrentRunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentRun == nil {
		return ""
	}
	return m.currentRun.RunID
}
