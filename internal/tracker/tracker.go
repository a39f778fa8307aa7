// Package tracker follows in-flight assessments by polling the platform for
// status and publishing progress snapshots until a terminal state is reached.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/govlens/assessment-console/internal/models"
)

var (
	ErrNotTracked   = errors.New("assessment is not being tracked")
	ErrNotCompleted = errors.New("assessment has not completed")
)

// StatusFetcher is the slice of the platform client the tracker needs
type StatusFetcher interface {
	GetAssessmentStatus(ctx context.Context, id string) (*models.Assessment, error)
}

// Progress is a point-in-time view of a tracked assessment. Err carries a
// transient fetch failure; polling continues and the last known status stands.
type Progress struct {
	AssessmentID string                  `json:"assessment_id"`
	Status       models.AssessmentStatus `json:"status"`
	Percent      int                     `json:"percent"`
	Phase        string                  `json:"phase"`
	Elapsed      string                  `json:"elapsed,omitempty"`
	Err          string                  `json:"error,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Terminal reports whether polling has ended for this assessment
func (p Progress) Terminal() bool {
	return p.Status.IsTerminal()
}

// Tracker polls one assessment until it reaches a terminal state or is
// stopped. Polls are strictly sequential: a slow response delays the next
// tick rather than stacking requests.
type Tracker struct {
	assessmentID string
	fetcher      StatusFetcher
	interval     time.Duration
	grace        time.Duration
	onComplete   func(assessmentID string)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	latest Progress
	subs   map[chan Progress]struct{}

	// Shared by the automatic grace-delayed handoff and ViewResults so the
	// completion hook fires at most once.
	completeOnce sync.Once
}

func newTracker(assessmentID string, fetcher StatusFetcher, interval, grace time.Duration, onComplete func(string)) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		assessmentID: assessmentID,
		fetcher:      fetcher,
		interval:     interval,
		grace:        grace,
		onComplete:   onComplete,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		latest: Progress{
			AssessmentID: assessmentID,
			Status:       models.StatusPending,
			Percent:      models.StatusPending.ProgressPercent(),
			Phase:        models.StatusPending.PhaseLabel(),
			UpdatedAt:    time.Now(),
		},
		subs: make(map[chan Progress]struct{}),
	}
}

// Latest returns the most recent progress snapshot
func (t *Tracker) Latest() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Subscribe returns a channel receiving progress snapshots. Slow consumers
// drop updates instead of blocking the poll loop; the next snapshot
// supersedes anything missed.
func (t *Tracker) Subscribe() chan Progress {
	ch := make(chan Progress, 8)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel
func (t *Tracker) Unsubscribe(ch chan Progress) {
	t.mu.Lock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *Tracker) publish(p Progress) {
	t.mu.Lock()
	t.latest = p
	for ch := range t.subs {
		select {
		case ch <- p:
		default:
		}
	}
	t.mu.Unlock()
}

// Stop cancels polling. After Stop returns, no further snapshots are
// published and the completion hook will not fire.
func (t *Tracker) Stop() {
	t.cancel()
	<-t.done
}

// ViewResults fires the completion hook ahead of the grace delay and ends
// tracking. Only valid once a Completed snapshot exists; the hook still
// fires at most once even if the automatic handoff races it.
func (t *Tracker) ViewResults() error {
	if t.Latest().Status != models.StatusCompleted {
		return ErrNotCompleted
	}
	t.fireComplete()
	t.cancel()
	<-t.done
	return nil
}

func (t *Tracker) fireComplete() {
	t.completeOnce.Do(func() {
		if t.onComplete != nil {
			t.onComplete(t.assessmentID)
		}
	})
}

func (t *Tracker) run() {
	defer close(t.done)

	slog.Info("tracking assessment", "assessment_id", t.assessmentID, "interval", t.interval)

	// First poll happens immediately so the UI is not blank for a full tick
	if t.poll() {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			slog.Debug("tracker stopped", "assessment_id", t.assessmentID)
			return
		case <-ticker.C:
			if t.poll() {
				return
			}
		}
	}
}

// poll fetches status once and returns true when polling should end
func (t *Tracker) poll() bool {
	ctx, cancel := context.WithTimeout(t.ctx, t.interval)
	a, err := t.fetcher.GetAssessmentStatus(ctx, t.assessmentID)
	cancel()

	// A stop that raced the fetch wins: nothing is published for a result
	// that arrived after cancellation.
	if t.ctx.Err() != nil {
		return true
	}

	now := time.Now()

	if err != nil {
		slog.Warn("status poll failed", "assessment_id", t.assessmentID, "error", err)
		p := t.Latest()
		p.Err = err.Error()
		p.UpdatedAt = now
		t.publish(p)
		return false
	}

	p := Progress{
		AssessmentID: t.assessmentID,
		Status:       a.Status,
		Percent:      a.Status.ProgressPercent(),
		Phase:        a.Status.PhaseLabel(),
		UpdatedAt:    now,
	}
	if !a.StartedAt.IsZero() {
		p.Elapsed = models.FormatElapsed(a.Elapsed(now))
	}
	t.publish(p)

	if !a.Status.IsTerminal() {
		return false
	}

	slog.Info("assessment reached terminal state", "assessment_id", t.assessmentID, "status", a.Status)

	if a.Status == models.StatusCompleted && t.onComplete != nil {
		// Let the terminal snapshot render before the completion hook tears
		// the progress view down.
		select {
		case <-t.ctx.Done():
			return true
		case <-time.After(t.grace):
		}
		if t.ctx.Err() == nil {
			t.fireComplete()
		}
	}
	return true
}
