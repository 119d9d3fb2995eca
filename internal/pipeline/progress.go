package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/filing-validator/internal/pipeline/steps"
	"github.com/jonathan/filing-validator/internal/types"
	"go.uber.org/zap"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

type progressKey struct{}

// WithProgress returns a context whose runs also report progress to cb
func WithProgress(ctx context.Context, cb ProgressCallback) context.Context {
	return context.WithValue(ctx, progressKey{}, cb)
}

// progressFor combines the pipeline-wide callback with one carried by ctx
func progressFor(ctx context.Context, base ProgressCallback) ProgressCallback {
	cb, _ := ctx.Value(progressKey{}).(ProgressCallback)
	switch {
	case cb == nil:
		return base
	case base == nil:
		return cb
	}
	return func(e ProgressEvent) {
		base(e)
		cb(e)
	}
}

// RunRecorder persists run history. Recording failures never fail a run.
type RunRecorder interface {
	StartRun(ctx context.Context, runID uuid.UUID, blobs []string) error
	RecordStep(ctx context.Context, runID uuid.UUID, step, category, status string, duration time.Duration, errMsg string) error
	CompleteRun(ctx context.Context, runID uuid.UUID, result *types.PipelineResult) error
}

// tracker records step statuses for one run and fans them out to the
// progress callback and the recorder.
type tracker struct {
	ctx      context.Context
	runID    uuid.UUID
	statuses map[string]string
	started  map[string]time.Time
	recorder RunRecorder
	progress ProgressCallback
	logger   *zap.Logger
}

func newTracker(ctx context.Context, runID uuid.UUID, recorder RunRecorder, progress ProgressCallback, logger *zap.Logger) *tracker {
	return &tracker{
		ctx:      ctx,
		runID:    runID,
		statuses: make(map[string]string, len(steps.Order)),
		started:  make(map[string]time.Time),
		recorder: recorder,
		progress: progress,
		logger:   logger,
	}
}

// ready reports whether step's dependencies have completed. When they have
// not, the step is marked blocked.
func (t *tracker) ready(step string) bool {
	if err := steps.ValidateDependencies(t.statuses, step); err != nil {
		t.logger.Warn("pipeline: step blocked", zap.String("step", step), zap.Error(err))
		t.set(step, steps.StatusBlocked, err.Error())
		return false
	}
	return true
}

func (t *tracker) start(step, message string) {
	t.started[step] = time.Now()
	t.set(step, steps.StatusInProgress, message)
}

func (t *tracker) complete(step, message string) {
	t.set(step, steps.StatusCompleted, message)
}

func (t *tracker) fail(step, message string) {
	t.set(step, steps.StatusFailed, message)
}

func (t *tracker) skip(step, message string) {
	t.set(step, steps.StatusSkipped, message)
}

// abandon closes out a failed run: the step that was in progress fails and
// every step that never started is skipped.
func (t *tracker) abandon(reason string) {
	for _, step := range steps.Order {
		if t.statuses[step] == steps.StatusInProgress {
			t.fail(step, reason)
		}
	}
	available := steps.AvailableSteps(t.statuses)
	blocked := steps.BlockedSteps(t.statuses)
	if len(available)+len(blocked) > 0 {
		t.logger.Info("pipeline: skipping unstarted steps",
			zap.Strings("available", available), zap.Strings("blocked", blocked))
	}
	for _, step := range steps.Order {
		if s, ok := t.statuses[step]; !ok || s == steps.StatusPending {
			t.skip(step, "run aborted")
		}
	}
}

func (t *tracker) set(step, status, message string) {
	t.statuses[step] = status
	category := steps.StepRegistry[step].Category

	if t.progress != nil {
		t.progress(ProgressEvent{
			Step:     step,
			Category: category,
			Status:   status,
			Message:  message,
			RunID:    t.runID.String(),
		})
	}

	if t.recorder == nil || status == steps.StatusInProgress {
		return
	}
	var elapsed time.Duration
	if began, ok := t.started[step]; ok {
		elapsed = time.Since(began)
	}
	errMsg := ""
	if status == steps.StatusFailed || status == steps.StatusBlocked {
		errMsg = message
	}
	if err := t.recorder.RecordStep(t.ctx, t.runID, step, category, status, elapsed, errMsg); err != nil {
		t.logger.Warn("pipeline: failed to record step", zap.String("step", step), zap.Error(err))
	}
}
