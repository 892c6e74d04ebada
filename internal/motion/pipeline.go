package motion

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// State is the lifecycle state of the pipeline.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Step names an execution target. A run executes the dependency-ordered
// prefix of the stage chain up to and including the step.
type Step int

const (
	StepFindFeatures Step = iota
	StepMatchFeatures
	StepFindHomographies
	StepBundleAdjustment
	StepBuildTracks
	StepAll
)

// numStages is the length of the stage chain; StepAll maps to the full
// prefix.
const numStages = 5

// String returns the step's wire name.
func (s Step) String() string {
	switch s {
	case StepFindFeatures:
		return "find-features"
	case StepMatchFeatures:
		return "match-features"
	case StepFindHomographies:
		return "find-homographies"
	case StepBundleAdjustment:
		return "bundle-adjustment"
	case StepBuildTracks:
		return "build-tracks"
	case StepAll:
		return "all"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ParseStep maps a wire name back to a Step.
func ParseStep(name string) (Step, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "find-features", "features":
		return StepFindFeatures, nil
	case "match-features", "matches":
		return StepMatchFeatures, nil
	case "find-homographies", "homographies":
		return StepFindHomographies, nil
	case "bundle-adjustment", "refine":
		return StepBundleAdjustment, nil
	case "build-tracks", "tracks":
		return StepBuildTracks, nil
	case "all":
		return StepAll, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStep, name)
}

// Sentinel errors for state-machine and input violations.
var (
	ErrRunActive        = errors.New("a pipeline run is already active")
	ErrNoFrames         = errors.New("no frames in working zone")
	ErrTooFewFrames     = errors.New("pairwise stages need at least 2 frames")
	ErrMaskSizeMismatch = errors.New("mask size does not match frame size")
	ErrUnknownStep      = errors.New("unknown pipeline step")
	ErrStageNotReady    = errors.New("required earlier stage has no cached output")
	ErrTimestampOrder   = errors.New("frame timestamps are not strictly increasing")
)

// RunStats aggregates counters for one pipeline run.
type RunStats struct {
	Frames            int
	Features          int
	Candidates        int
	Inliers           int
	Transforms        int
	Holes             int
	RefinedTransforms int
	Tracks            int
}

// RunObserver receives run lifecycle callbacks, e.g. for persisting
// analysis-run records. Callbacks run on the worker goroutine.
type RunObserver interface {
	RunStarted(params Params, frameCount int)
	RunCompleted(stats RunStats)
	RunCancelled(stats RunStats)
	RunFailed(err error)
}

// PipelineConfig holds dependencies for a Pipeline.
type PipelineConfig struct {
	Source   FrameSource
	Params   Params
	Mask     *Mask       // optional exclusion mask
	Stages   Stages      // zero-value fields use the defaults
	Observer RunObserver // optional
}

// Pipeline is the stepwise orchestrator. It exclusively owns all derived
// state; consumers read it through the accessors and never mutate it.
// Exactly one run may be active at a time.
type Pipeline struct {
	mu       sync.RWMutex
	source   FrameSource
	params   Params
	mask     *Mask
	stages   Stages
	observer RunObserver

	state      State
	frames     []Frame
	tsIndex    map[int64]FrameIndex
	arena      *resultArena
	stageDone  [numStages]bool
	hasResults bool

	active *RunHandle
}

// NewPipeline builds an idle pipeline over the given working zone.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		source:   cfg.Source,
		params:   cfg.Params,
		mask:     cfg.Mask,
		stages:   cfg.Stages.withDefaults(),
		observer: cfg.Observer,
		state:    StateIdle,
		arena:    newResultArena(0),
	}
}

// RunHandle tracks one submitted run. The requesting side owns the
// decision of how to wait: block on Wait, or poll State and select on
// Done.
type RunHandle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	err   error
}

// Done is closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Cancel requests cooperative cancellation. The worker honours it at the
// next frame/pair checkpoint; previously completed stage outputs stay
// intact and readable.
func (h *RunHandle) Cancel() { h.cancel() }

// Wait blocks until the run terminates and returns its error, nil for
// Completed and Cancelled.
func (h *RunHandle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// State returns the run's current state.
func (h *RunHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *RunHandle) finish(state State, err error) {
	h.mu.Lock()
	h.state = state
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Run validates inputs, transitions Idle -> Running, and executes the
// stage chain up to and including step on a dedicated worker goroutine.
// Stages with valid cached output for the current frame set and params are
// skipped. A second Run while one is active is rejected with ErrRunActive,
// never interleaved.
//
// Input errors (no frames, too few frames for pairwise stages, mask size
// mismatch, broken timestamp order) are reported before any stage starts
// and move the pipeline to Failed with nothing cached.
//
// Cancellation through ctx, whether by explicit cancel or an expired
// deadline, moves the run to Cancelled, not Failed.
func (p *Pipeline) Run(ctx context.Context, step Step) (*RunHandle, error) {
	if step != StepAll && (step < StepFindFeatures || step > StepBuildTracks) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, int(step))
	}

	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return nil, ErrRunActive
	}

	// Observer callbacks fire outside the lock so they may call the read
	// accessors.
	obs := p.observer

	failErr := p.ensureFramesLocked()
	if failErr == nil && step != StepFindFeatures && len(p.frames) < 2 {
		failErr = fmt.Errorf("%w: have %d", ErrTooFewFrames, len(p.frames))
	}
	if failErr == nil {
		failErr = p.validateMaskLocked()
	}
	if failErr != nil {
		p.state = StateFailed
		p.mu.Unlock()
		if !isNilInterface(obs) {
			obs.RunFailed(failErr)
		}
		return nil, failErr
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &RunHandle{done: make(chan struct{}), cancel: cancel, state: StateRunning}
	p.state = StateRunning
	p.active = handle
	params := p.params
	frames := len(p.frames)
	p.mu.Unlock()

	if !isNilInterface(obs) {
		obs.RunStarted(params, frames)
	}
	opsf("[Pipeline] Run started: step=%s frames=%d", step, frames)

	go p.worker(runCtx, cancel, step, handle)
	return handle, nil
}

// worker executes the requested stage prefix. It computes without holding
// the lock (it is the only mutator while state is Running) and commits
// each stage's output atomically, so readers never observe a partial
// stage.
func (p *Pipeline) worker(ctx context.Context, cancel context.CancelFunc, step Step, handle *RunHandle) {
	defer cancel()

	target := step
	if target == StepAll {
		target = StepBuildTracks
	}
	first := StepFindFeatures
	if p.params.StepByStep && step != StepAll {
		// Step-by-step mode: execute only the requested stage; its
		// dependencies must already be cached.
		for s := StepFindFeatures; s < step; s++ {
			if !p.stageDone[s] {
				p.finishRun(handle, StateFailed, fmt.Errorf("%w: %s", ErrStageNotReady, s))
				return
			}
		}
		first = step
	}

	for s := first; s <= target; s++ {
		if p.stageDone[s] {
			tracef("[Pipeline] Stage %s cached, skipping", s)
			continue
		}
		var err error
		switch s {
		case StepFindFeatures:
			err = p.runFindFeatures(ctx)
		case StepMatchFeatures:
			err = p.runMatchFeatures(ctx)
		case StepFindHomographies:
			err = p.runFindHomographies(ctx)
		case StepBundleAdjustment:
			err = p.runBundleAdjustment(ctx)
		case StepBuildTracks:
			err = p.runBuildTracks(ctx)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			opsf("[Pipeline] Run cancelled during %s; %d stages remain readable", s, int(s))
			p.finishRun(handle, StateCancelled, nil)
			return
		}
		if err != nil {
			opsf("[Pipeline] Run failed during %s: %v", s, err)
			p.finishRun(handle, StateFailed, err)
			return
		}
	}
	p.finishRun(handle, StateCompleted, nil)
}

func (p *Pipeline) finishRun(handle *RunHandle, state State, err error) {
	p.mu.Lock()
	p.state = state
	p.active = nil
	if state == StateCompleted {
		p.hasResults = true
	}
	stats := p.statsLocked()
	obs := p.observer
	p.mu.Unlock()

	if !isNilInterface(obs) {
		switch state {
		case StateCompleted:
			obs.RunCompleted(stats)
		case StateCancelled:
			obs.RunCancelled(stats)
		case StateFailed:
			obs.RunFailed(err)
		}
	}
	if state == StateCompleted {
		opsf("[Pipeline] Run completed: %d features, %d candidates (%d inliers), %d transforms (%d holes), %d tracks",
			stats.Features, stats.Candidates, stats.Inliers, stats.Transforms, stats.Holes, stats.Tracks)
	}
	handle.finish(state, err)
}

// ensureFramesLocked loads the working zone on first use and establishes
// the Timestamp -> FrameIndex bijection. Individual unreadable frames are
// kept with a nil image; the feature stage skips them.
func (p *Pipeline) ensureFramesLocked() error {
	if p.frames != nil {
		return nil
	}
	if p.source == nil || p.source.FrameCount() == 0 {
		return ErrNoFrames
	}
	count := p.source.FrameCount()
	frames := make([]Frame, count)
	tsIndex := make(map[int64]FrameIndex, count)
	var prevTS int64
	for i := 0; i < count; i++ {
		img, ts, err := p.source.FrameAt(i)
		if err != nil {
			// Degraded-stage condition: the frame stays featureless.
			diagf("[Pipeline] Frame %d unreadable, will be skipped: %v", i, err)
			img = nil
		}
		if i > 0 && ts <= prevTS {
			return fmt.Errorf("%w: frame %d ts %d after %d", ErrTimestampOrder, i, ts, prevTS)
		}
		prevTS = ts
		frames[i] = Frame{Index: FrameIndex(i), Timestamp: ts, Image: img}
		tsIndex[ts] = FrameIndex(i)
	}
	p.frames = frames
	p.tsIndex = tsIndex
	p.arena = newResultArena(count)
	return nil
}

// validateMaskLocked rejects a mask whose dimensions do not match the
// working zone's frame size. Checked against the first readable frame so
// the run fails fast instead of mid-pipeline.
func (p *Pipeline) validateMaskLocked() error {
	if p.mask == nil {
		return nil
	}
	for _, f := range p.frames {
		if f.Image != nil {
			b := f.Image.Bounds()
			return p.mask.Validate(b.Dx(), b.Dy())
		}
	}
	return nil
}

func (p *Pipeline) runFindFeatures(ctx context.Context) error {
	features := make([][]Feature, len(p.frames))
	total := 0
	for i, frame := range p.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if frame.Image == nil {
			tracef("[Features] Frame %d has no image, leaving featureless", i)
			continue
		}
		fs, err := p.stages.Features.DetectFeatures(frame, p.mask, p.params)
		if err != nil {
			// Absorbed locally: skip the frame, continue the sequence.
			diagf("[Features] Frame %d detection failed, skipping: %v", i, err)
			continue
		}
		features[i] = fs
		total += len(fs)
	}
	tracef("[Features] Detected %d features across %d frames", total, len(p.frames))

	p.mu.Lock()
	p.arena.features = features
	p.stageDone[StepFindFeatures] = true
	// Everything downstream of a fresh detection pass is stale.
	p.invalidateFromLocked(StepMatchFeatures)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) runMatchFeatures(ctx context.Context) error {
	pairs := len(p.frames) - 1
	matches := make([][]Match, pairs)
	for i := 0; i < pairs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		matches[i] = p.stages.Matcher.MatchPair(p.arena.features[i], p.arena.features[i+1], i, p.params)
	}

	p.mu.Lock()
	p.arena.matches = matches
	p.stageDone[StepMatchFeatures] = true
	p.invalidateFromLocked(StepFindHomographies)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) runFindHomographies(ctx context.Context) error {
	pairs := len(p.frames) - 1
	chain := make([]Homography, pairs)
	errBefore := make([]float64, pairs)
	holes := 0
	for i := 0; i < pairs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chain[i] = p.stages.Estimate.EstimatePair(p.arena.matches[i], p.params)
		errBefore[i] = meanInlierError(chain[i], p.arena.matches[i])
		if !chain[i].Valid {
			holes++
			tracef("[Estimator] Pair %d left as hole", i)
		}
	}
	if holes > 0 {
		diagf("[Estimator] Chain has %d holes of %d pairs", holes, pairs)
	}

	p.mu.Lock()
	p.arena.chain = chain
	p.arena.pairErrBefore = errBefore
	p.stageDone[StepFindHomographies] = true
	p.invalidateFromLocked(StepBundleAdjustment)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) runBundleAdjustment(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Refine copies, then commit, so cancellation mid-refinement cannot
	// leave a half-adjusted chain visible.
	chain := make([]Homography, len(p.arena.chain))
	copy(chain, p.arena.chain)
	matches := make([][]Match, len(p.arena.matches))
	for i := range p.arena.matches {
		matches[i] = append([]Match(nil), p.arena.matches[i]...)
	}

	refined := p.stages.Refine.Refine(chain, matches, p.params)
	errAfter := make([]float64, len(chain))
	for i := range chain {
		errAfter[i] = meanInlierError(chain[i], matches[i])
	}

	p.mu.Lock()
	if refined > 0 {
		p.arena.chain = chain
		p.arena.matches = matches
	}
	p.arena.pairErrAfter = errAfter
	p.stageDone[StepBundleAdjustment] = true
	p.invalidateFromLocked(StepBuildTracks)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) runBuildTracks(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tracks := p.stages.Tracks.BuildTracks(p.frames, p.arena.matches, p.params)
	tracef("[Tracks] Built %d tracks", len(tracks))

	p.mu.Lock()
	p.arena.tracks = tracks
	p.stageDone[StepBuildTracks] = true
	p.mu.Unlock()
	return nil
}

// invalidateFromLocked clears cached outputs for stage s and everything
// after it.
func (p *Pipeline) invalidateFromLocked(s Step) {
	for i := s; i < numStages; i++ {
		p.stageDone[i] = false
	}
	if s <= StepMatchFeatures {
		p.arena.matches = make([][]Match, pairCount(len(p.frames)))
	}
	if s <= StepFindHomographies {
		p.arena.chain = make([]Homography, pairCount(len(p.frames)))
		p.arena.pairErrBefore = make([]float64, pairCount(len(p.frames)))
	}
	if s <= StepBundleAdjustment {
		p.arena.pairErrAfter = make([]float64, pairCount(len(p.frames)))
	}
	if s <= StepBuildTracks {
		p.arena.tracks = nil
	}
	p.hasResults = false
}

func pairCount(frames int) int {
	if frames < 2 {
		return 0
	}
	return frames - 1
}

// SetParams replaces the run parameters. Changing them invalidates every
// cached stage from feature detection onward. Rejected while a run is
// active.
func (p *Pipeline) SetParams(params Params) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return ErrRunActive
	}
	if params == p.params {
		return nil
	}
	p.params = params
	p.invalidateFromLocked(StepFindFeatures)
	p.arena.features = make([][]Feature, len(p.frames))
	diagf("[Pipeline] Parameters changed, cached stage outputs invalidated")
	return nil
}

// SetMask replaces the exclusion mask, invalidating all cached stages.
// Rejected while a run is active.
func (p *Pipeline) SetMask(mask *Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return ErrRunActive
	}
	p.mask = mask
	p.invalidateFromLocked(StepFindFeatures)
	p.arena.features = make([][]Feature, len(p.frames))
	diagf("[Pipeline] Mask changed, cached stage outputs invalidated")
	return nil
}

// Reset returns the pipeline to Idle and clears all cached feature, match,
// transform, and track state, including the loaded working zone. Rejected
// while a run is active.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRunning {
		return ErrRunActive
	}
	p.frames = nil
	p.tsIndex = nil
	p.arena = newResultArena(0)
	p.stageDone = [numStages]bool{}
	p.hasResults = false
	p.state = StateIdle
	opsf("[Pipeline] Reset to idle, all cached state cleared")
	return nil
}

// isNilInterface checks if an interface value is nil or contains a nil
// pointer. This handles the Go interface nil pitfall where i != nil but
// the underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
