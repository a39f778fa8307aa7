package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govlens/assessment-console/internal/models"
)

type fetchResult struct {
	assessment *models.Assessment
	err        error
}

// scriptedFetcher returns its results in order; the last one repeats. Polls
// block on the gate until the test has subscribed, so no snapshot is
// published before the test is listening.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	gate    chan struct{}
	calls   int
}

func (f *scriptedFetcher) GetAssessmentStatus(ctx context.Context, id string) (*models.Assessment, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++

	r := f.results[idx]
	return r.assessment, r.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func statusResult(id string, status models.AssessmentStatus) fetchResult {
	return fetchResult{assessment: &models.Assessment{
		ID:        id,
		Status:    status,
		StartedAt: time.Now().Add(-90 * time.Second),
	}}
}

type completionRecorder struct {
	mu    sync.Mutex
	ids   []string
	times []time.Time
}

func (c *completionRecorder) record(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	c.times = append(c.times, time.Now())
}

func (c *completionRecorder) completed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestTrackerPollsUntilCompleted(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-1", models.StatusPending),
		statusResult("a-1", models.StatusInProgress),
		statusResult("a-1", models.StatusCompleted),
	}}

	rec := &completionRecorder{}
	m := NewManager(f,
		WithInterval(10*time.Millisecond),
		WithGraceDelay(time.Millisecond),
		WithOnComplete(rec.record),
	)

	tr := m.Track("a-1")
	sub := tr.Subscribe()
	close(f.gate)

	var seen []Progress
	for p := range sub {
		seen = append(seen, p)
		if p.Terminal() {
			break
		}
	}

	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, models.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, "complete", last.Phase)
	assert.Equal(t, "1m 30s", last.Elapsed)

	first := seen[0]
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, 10, first.Percent)

	require.Eventually(t, func() bool {
		return len(rec.completed()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a-1"}, rec.completed())

	// The finished tracker is reaped from the manager
	require.Eventually(t, func() bool {
		_, err := m.Get("a-1")
		return errors.Is(err, ErrNotTracked)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFailedAssessmentEndsPollingWithoutCompletion(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-2", models.StatusInProgress),
		statusResult("a-2", models.StatusFailed),
	}}

	rec := &completionRecorder{}
	m := NewManager(f,
		WithInterval(10*time.Millisecond),
		WithGraceDelay(time.Millisecond),
		WithOnComplete(rec.record),
	)

	tr := m.Track("a-2")
	sub := tr.Subscribe()
	close(f.gate)

	var last Progress
	for p := range sub {
		last = p
		if p.Terminal() {
			break
		}
	}

	assert.Equal(t, models.StatusFailed, last.Status)
	assert.Equal(t, 0, last.Percent)
	assert.Equal(t, "failed", last.Phase)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.completed())
}

func TestTransientFetchErrorKeepsPolling(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		{err: errors.New("upstream timeout")},
		statusResult("a-3", models.StatusCompleted),
	}}

	m := NewManager(f, WithInterval(10*time.Millisecond), WithGraceDelay(time.Millisecond))
	tr := m.Track("a-3")
	sub := tr.Subscribe()
	close(f.gate)

	var seen []Progress
	for p := range sub {
		seen = append(seen, p)
		if p.Terminal() {
			break
		}
	}

	require.GreaterOrEqual(t, len(seen), 2)
	assert.Contains(t, seen[0].Err, "upstream timeout")
	// The transient error does not advance the status
	assert.Equal(t, models.StatusPending, seen[0].Status)
	assert.Equal(t, models.StatusCompleted, seen[len(seen)-1].Status)
	assert.Empty(t, seen[len(seen)-1].Err)
}

func TestCompletionWaitsForGraceDelay(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-4", models.StatusCompleted),
	}}

	rec := &completionRecorder{}
	m := NewManager(f,
		WithInterval(10*time.Millisecond),
		WithGraceDelay(60*time.Millisecond),
		WithOnComplete(rec.record),
	)

	tr := m.Track("a-4")
	sub := tr.Subscribe()
	close(f.gate)

	var terminalAt time.Time
	for p := range sub {
		if p.Terminal() {
			terminalAt = time.Now()
			break
		}
	}

	require.Eventually(t, func() bool {
		return len(rec.completed()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	firedAt := rec.times[0]
	rec.mu.Unlock()
	assert.GreaterOrEqual(t, firedAt.Sub(terminalAt), 50*time.Millisecond)
}

func TestStopPreventsCompletionCallback(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-5", models.StatusCompleted),
	}}

	rec := &completionRecorder{}
	m := NewManager(f,
		WithInterval(10*time.Millisecond),
		WithGraceDelay(300*time.Millisecond),
		WithOnComplete(rec.record),
	)

	tr := m.Track("a-5")
	sub := tr.Subscribe()
	close(f.gate)

	// Wait for the terminal snapshot, then stop inside the grace window
	for p := range sub {
		if p.Terminal() {
			break
		}
	}
	require.NoError(t, m.Stop("a-5"))

	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, rec.completed())
}

func TestTrackDeduplicates(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{
		statusResult("a-6", models.StatusInProgress),
	}}

	m := NewManager(f, WithInterval(10*time.Millisecond))
	defer m.StopAll()

	first := m.Track("a-6")
	second := m.Track("a-6")
	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Count())
}

func TestStopAllCancelsEveryTracker(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{
		statusResult("x", models.StatusInProgress),
	}}

	m := NewManager(f, WithInterval(10*time.Millisecond))
	m.Track("a-7")
	m.Track("a-8")
	require.Equal(t, 2, m.Count())

	m.StopAll()
	assert.Equal(t, 0, m.Count())

	calls := f.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, f.callCount(), "polling continued after StopAll")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{
		statusResult("a-9", models.StatusInProgress),
	}}

	m := NewManager(f, WithInterval(10*time.Millisecond))
	defer m.StopAll()

	tr := m.Track("a-9")
	sub := tr.Subscribe()
	tr.Unsubscribe(sub)

	// Drains any buffered snapshots and returns once the channel is closed
	for range sub {
	}
}

func TestViewResultsFiresCallbackAheadOfGrace(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-10", models.StatusCompleted),
	}}

	rec := &completionRecorder{}
	m := NewManager(f,
		WithInterval(10*time.Millisecond),
		WithGraceDelay(5*time.Second),
		WithOnComplete(rec.record),
	)

	tr := m.Track("a-10")
	sub := tr.Subscribe()
	close(f.gate)

	p := <-sub
	require.Equal(t, models.StatusCompleted, p.Status)

	start := time.Now()
	final, err := m.ViewResults("a-10")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Less(t, time.Since(start), time.Second, "handoff waited out the grace delay")
	assert.Equal(t, []string{"a-10"}, rec.completed())

	// The automatic handoff was cut short and must not fire a second time
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"a-10"}, rec.completed())

	require.Eventually(t, func() bool {
		_, err := m.Get("a-10")
		return errors.Is(err, ErrNotTracked)
	}, 2*time.Second, 5*time.Millisecond)

	_, err = m.ViewResults("a-10")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestViewResultsRequiresCompletedSnapshot(t *testing.T) {
	f := &scriptedFetcher{gate: make(chan struct{}), results: []fetchResult{
		statusResult("a-11", models.StatusInProgress),
	}}

	rec := &completionRecorder{}
	m := NewManager(f, WithInterval(10*time.Millisecond), WithOnComplete(rec.record))
	defer m.StopAll()

	tr := m.Track("a-11")
	sub := tr.Subscribe()
	close(f.gate)

	p := <-sub
	require.Equal(t, models.StatusInProgress, p.Status)

	_, err := m.ViewResults("a-11")
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Empty(t, rec.completed())
}
