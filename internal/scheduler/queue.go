// Package scheduler runs the periodic plan check: an in-process job queue of
// recurring and one-shot work, the check itself, and the daemon that wires
// them to settings.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/planmate/internal/logger"
	"github.com/julianstephens/planmate/internal/metrics"
)

var ErrStopped = errors.New("scheduler queue is stopped")

// Policy decides what happens when a tag is enqueued twice.
type Policy int

const (
	// Keep leaves an existing job with the same tag in place.
	Keep Policy = iota
	// Replace cancels the existing job and installs the new one.
	Replace
)

// State is a job's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateScheduled
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateFiring:
		return "firing"
	}
	return "idle"
}

// JobFunc is the unit of work. ctx is cancelled when the job is cancelled,
// replaced, or the queue stops.
type JobFunc func(ctx context.Context)

// JobInfo describes a queued job.
type JobInfo struct {
	ID       uuid.UUID
	Tag      string
	Periodic bool
	Interval time.Duration
	State    State
}

type job struct {
	id       uuid.UUID
	tag      string
	delay    time.Duration
	interval time.Duration
	periodic bool
	fn       JobFunc
	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
}

func (j *job) info() JobInfo {
	return JobInfo{ID: j.id, Tag: j.tag, Periodic: j.periodic, Interval: j.interval, State: State(j.state.Load())}
}

// Queue holds tagged jobs. Jobs enqueued before Start wait for it.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

func NewQueue(m *metrics.Metrics) *Queue {
	return &Queue{jobs: map[string]*job{}, metrics: m}
}

// EnqueuePeriodic runs fn every interval, first after one interval.
func (q *Queue) EnqueuePeriodic(tag string, interval time.Duration, policy Policy, fn JobFunc) (uuid.UUID, error) {
	return q.enqueue(&job{tag: tag, delay: interval, interval: interval, periodic: true, fn: fn}, policy)
}

// EnqueueOnce runs fn once after delay.
func (q *Queue) EnqueueOnce(tag string, delay time.Duration, policy Policy, fn JobFunc) (uuid.UUID, error) {
	return q.enqueue(&job{tag: tag, delay: delay, fn: fn}, policy)
}

func (q *Queue) enqueue(j *job, policy Policy) (uuid.UUID, error) {
	if j.periodic && j.interval <= 0 {
		return uuid.Nil, errors.New("periodic interval must be positive")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return uuid.Nil, ErrStopped
	}
	if existing, ok := q.jobs[j.tag]; ok {
		if policy == Keep {
			return existing.id, nil
		}
		if existing.cancel != nil {
			existing.cancel()
		}
		logger.Debug("replacing job", "tag", j.tag, "old", existing.id)
	}
	j.id = uuid.New()
	q.jobs[j.tag] = j
	if q.started {
		q.launch(j)
	}
	q.metrics.SetJobs(len(q.jobs))
	return j.id, nil
}

// launch must be called with q.mu held.
func (q *Queue) launch(j *job) {
	j.ctx, j.cancel = context.WithCancel(q.ctx)
	j.state.Store(int32(StateScheduled))
	q.wg.Add(1)
	go q.run(j)
}

func (q *Queue) run(j *job) {
	defer q.wg.Done()
	timer := time.NewTimer(j.delay)
	defer timer.Stop()
	for {
		j.state.Store(int32(StateScheduled))
		select {
		case <-j.ctx.Done():
			j.state.Store(int32(StateIdle))
			return
		case <-timer.C:
		}
		j.state.Store(int32(StateFiring))
		q.fire(j)
		j.state.Store(int32(StateIdle))
		if !j.periodic {
			q.forget(j)
			return
		}
		timer.Reset(j.interval)
	}
}

func (q *Queue) fire(j *job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "tag", j.tag, "panic", r)
		}
	}()
	kind := "once"
	if j.periodic {
		kind = "periodic"
	}
	q.metrics.ObserveJobRun(kind)
	j.fn(j.ctx)
}

// forget drops a finished one-shot job unless it was already replaced.
func (q *Queue) forget(j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs[j.tag] == j {
		delete(q.jobs, j.tag)
		q.metrics.SetJobs(len(q.jobs))
	}
	j.cancel()
}

// Start launches every pending job. Jobs stop when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrStopped
	}
	if q.started {
		return nil
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	for _, j := range q.jobs {
		q.launch(j)
	}
	return nil
}

// Stop cancels every job and waits for running work to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	q.jobs = map[string]*job{}
	q.mu.Unlock()
	q.wg.Wait()
	q.metrics.SetJobs(0)
}

// Cancel removes the job with exactly this tag.
func (q *Queue) Cancel(tag string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelLocked(tag)
}

func (q *Queue) cancelLocked(tag string) bool {
	j, ok := q.jobs[tag]
	if !ok {
		return false
	}
	if j.cancel != nil {
		j.cancel()
	}
	delete(q.jobs, tag)
	q.metrics.SetJobs(len(q.jobs))
	return true
}

// CancelPrefix removes jobs whose tag is prefix itself or prefix followed by
// "_". A prefix ending in an id therefore never matches a longer id.
func (q *Queue) CancelPrefix(prefix string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for tag := range q.jobs {
		rest, ok := strings.CutPrefix(tag, prefix)
		if !ok || (rest != "" && !strings.HasPrefix(rest, "_")) {
			continue
		}
		if q.cancelLocked(tag) {
			n++
		}
	}
	return n
}

// Tags lists queued tags in order.
func (q *Queue) Tags() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for tag := range q.jobs {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Job reports the job holding tag.
func (q *Queue) Job(tag string) (JobInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[tag]
	if !ok {
		return JobInfo{}, false
	}
	return j.info(), true
}
