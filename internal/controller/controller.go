// Package controller owns the per-file OCR job lifecycle: when a job is
// auto-started, how long it is polled, how updates merge into row state, and
// how retry re-arms a failed job. Callers only ever observe canonical
// snapshots; raw wire shapes never escape the backend boundary.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/status"
)

// Backend is the OCR start/status surface the controller drives. Both calls
// return canonical updates; implementations run raw responses through the
// status normalizer with the prior canonical status.
type Backend interface {
	Start(ctx context.Context, fileID uuid.UUID) (status.Update, error)
	Status(ctx context.Context, fileID uuid.UUID, prior constants.OCRStatus) (status.Update, error)
}

// Snapshot is the user-facing view of one job.
type Snapshot struct {
	Status constants.OCRStatus
	// ExtractedText is monotonic: once non-empty it is never cleared by a
	// later empty update. TextConfirmed distinguishes a job that legitimately
	// found no text from one whose text has not been fetched yet.
	ExtractedText string
	TextConfirmed bool
	TextLen       int
	ErrorMessage  string
}

// Notifier receives transient, user-dismissible outcome messages.
type Notifier func(fileID uuid.UUID, message string)

// Job tracks one OCR attempt for one file.
type job struct {
	snap        Snapshot
	startedOnce bool
	// generation invalidates in-flight work: every retry or disposal bumps it,
	// and an update is applied only if its generation still matches.
	generation uint64
	polling    bool
	cancel     context.CancelFunc
	subs       map[int]func(Snapshot)
	nextSub    int
}

type Controller struct {
	backend      Backend
	logger       *slog.Logger
	notify       Notifier
	pollInterval time.Duration
	callTimeout  time.Duration

	mu     sync.Mutex
	jobs   map[uuid.UUID]*job
	closed bool
}

type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func New(backend Backend, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		backend:      backend,
		logger:       logger,
		notify:       func(uuid.UUID, string) {},
		pollInterval: 1750 * time.Millisecond,
		callTimeout:  30 * time.Second,
		jobs:         make(map[uuid.UUID]*job),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Track registers a file with its persisted initial status payload. Tracking
// an already-known file is a no-op; a fresh Job is only created on first
// observation or after the prior one was superseded.
func (c *Controller) Track(fileID uuid.UUID, initial status.Raw) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[fileID]; ok {
		return
	}
	upd := status.Normalize(initial, "")
	j := &job{subs: make(map[int]func(Snapshot))}
	j.snap.Status = upd.Status
	if upd.HasText && upd.Text != "" {
		j.snap.ExtractedText = upd.Text
		j.snap.TextConfirmed = true
	}
	j.snap.TextLen = upd.TextLen
	if upd.Status == constants.OCRStatusFailed {
		j.snap.ErrorMessage = upd.ErrorMessage
	}
	c.jobs[fileID] = j
}

// StartOrResume evaluates the start rule for the file: a pending job that has
// not auto-started yet triggers exactly one start call; a processing job gets
// its poll loop ensured. Terminal jobs are left alone. Safe to call any number
// of times.
func (c *Controller) StartOrResume(ctx context.Context, fileID uuid.UUID) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return common.NewError(common.KindPreconditionFailed, "controller closed")
	}
	j, ok := c.jobs[fileID]
	if !ok {
		c.mu.Unlock()
		return common.NewErrorf(common.KindNotFound, "file %s not tracked", fileID)
	}

	switch {
	case j.snap.Status == constants.OCRStatusPending && !j.startedOnce:
		j.startedOnce = true
		gen := j.generation
		c.mu.Unlock()
		return c.startJob(ctx, fileID, gen)

	case j.snap.Status == constants.OCRStatusProcessing && !j.polling:
		c.beginPollingLocked(fileID, j)
		c.mu.Unlock()
		return nil

	default:
		c.mu.Unlock()
		return nil
	}
}

func (c *Controller) startJob(ctx context.Context, fileID uuid.UUID, gen uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	c.logger.Info("ocr start", "file_id", fileID)
	upd, err := c.backend.Start(ctx, fileID)
	if err != nil {
		c.fail(fileID, gen, err)
		return err
	}

	if upd.Status.Terminal() {
		// Some backend variants complete synchronously.
		c.apply(fileID, gen, upd)
		return nil
	}

	c.apply(fileID, gen, status.Update{Status: constants.OCRStatusProcessing})
	c.mu.Lock()
	if j, ok := c.jobs[fileID]; ok && j.generation == gen && !j.polling {
		c.beginPollingLocked(fileID, j)
	}
	c.mu.Unlock()
	return nil
}

// beginPollingLocked spawns the poll loop for the job's current generation.
// Callers hold c.mu.
func (c *Controller) beginPollingLocked(fileID uuid.UUID, j *job) {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.polling = true
	go c.pollLoop(ctx, fileID, j.generation)
}

// pollLoop polls the backend until a terminal update lands or the loop is
// canceled. Each tick schedules the next only after its update has been
// applied, so at most one poll is in flight per job. The generation is checked
// on every application: a late response against a superseded job is dropped.
func (c *Controller) pollLoop(ctx context.Context, fileID uuid.UUID, gen uint64) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		prior := c.priorStatus(fileID, gen)
		if prior == "" {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		upd, err := c.backend.Status(callCtx, fileID, prior)
		cancel()

		if err != nil {
			c.fail(fileID, gen, err)
			return
		}
		if !c.apply(fileID, gen, upd) {
			return
		}
		timer.Reset(c.pollInterval)
	}
}

// priorStatus returns the current canonical status for the generation, or ""
// when the loop should stop (superseded, terminal, or untracked).
func (c *Controller) priorStatus(fileID uuid.UUID, gen uint64) constants.OCRStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[fileID]
	if !ok || j.generation != gen || j.snap.Status.Terminal() {
		return ""
	}
	return j.snap.Status
}

// apply merges a canonical update into the job. It returns true when polling
// should continue. Updates for a superseded generation or an already-terminal
// job are dropped.
func (c *Controller) apply(fileID uuid.UUID, gen uint64, upd status.Update) bool {
	c.mu.Lock()
	j, ok := c.jobs[fileID]
	if !ok || c.closed || j.generation != gen || j.snap.Status.Terminal() {
		c.mu.Unlock()
		return false
	}

	j.snap.Status = upd.Status
	if upd.HasText && upd.Text != "" {
		j.snap.ExtractedText = upd.Text
		j.snap.TextConfirmed = true
		j.snap.TextLen = len(upd.Text)
	} else if upd.HasText && upd.Status == constants.OCRStatusDone && j.snap.ExtractedText == "" {
		// The job legitimately found no text.
		j.snap.TextConfirmed = true
	}
	if upd.TextLen > 0 && j.snap.ExtractedText == "" {
		j.snap.TextLen = upd.TextLen
	}
	if upd.Status == constants.OCRStatusFailed {
		if upd.ErrorMessage != "" {
			j.snap.ErrorMessage = upd.ErrorMessage
		} else if j.snap.ErrorMessage == "" {
			j.snap.ErrorMessage = "ocr failed"
		}
	} else if upd.Status.Terminal() {
		j.snap.ErrorMessage = ""
	}

	terminal := j.snap.Status.Terminal()
	if terminal {
		j.polling = false
		if j.cancel != nil {
			j.cancel()
			j.cancel = nil
		}
	}
	snap := j.snap
	subs := subscriberList(j)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	if terminal {
		if snap.Status == constants.OCRStatusDone {
			c.notify(fileID, "OCR complete")
		} else {
			c.notify(fileID, snap.ErrorMessage)
		}
		c.logger.Info("ocr terminal", "file_id", fileID, "status", snap.Status)
	}
	return !terminal
}

// fail records a failed transition from a start or poll error.
func (c *Controller) fail(fileID uuid.UUID, gen uint64, err error) {
	msg := common.Message(err)
	c.logger.Error("ocr error", "file_id", fileID, "error", err)
	c.apply(fileID, gen, status.Update{
		Status:       constants.OCRStatusFailed,
		ErrorMessage: msg,
	})
}

// Retry clears the error, resets the job to pending, and re-arms the
// start-once guard. The prior poll loop, if any, is invalidated before the
// reset takes effect.
func (c *Controller) Retry(fileID uuid.UUID) {
	c.mu.Lock()
	j, ok := c.jobs[fileID]
	if !ok {
		c.mu.Unlock()
		return
	}
	j.generation++
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	j.polling = false
	j.startedOnce = false
	j.snap.Status = constants.OCRStatusPending
	j.snap.ErrorMessage = ""
	snap := j.snap
	subs := subscriberList(j)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns the current view of the file's job.
func (c *Controller) Snapshot(fileID uuid.UUID) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[fileID]
	if !ok {
		return Snapshot{}, false
	}
	return j.snap, true
}

// Subscribe registers an update callback and returns its unsubscribe func.
func (c *Controller) Subscribe(fileID uuid.UUID, fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[fileID]
	if !ok {
		return func() {}
	}
	id := j.nextSub
	j.nextSub++
	j.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if j, ok := c.jobs[fileID]; ok {
			delete(j.subs, id)
		}
	}
}

// Close disposes the controller: every poll loop is canceled and no further
// state mutation is applied.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, j := range c.jobs {
		j.generation++
		if j.cancel != nil {
			j.cancel()
			j.cancel = nil
		}
		j.polling = false
	}
}

func subscriberList(j *job) []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(j.subs))
	for _, fn := range j.subs {
		subs = append(subs, fn)
	}
	return subs
}
