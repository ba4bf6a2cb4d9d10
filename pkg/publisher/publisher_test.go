package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snpublisher/pkg/config"
	"snpublisher/pkg/errors"
	"snpublisher/pkg/logger"
	"snpublisher/pkg/session"
	"snpublisher/pkg/store"
)

// fakeQueue serves canned items and records status changes
type fakeQueue struct {
	items     []*store.ContentItem
	published []int64
	failed    map[int64]string
}

func (f *fakeQueue) GetPending(ctx context.Context, now time.Time) ([]*store.ContentItem, error) {
	return f.items, nil
}

func (f *fakeQueue) MarkPublished(ctx context.Context, id int64) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeQueue) MarkFailed(ctx context.Context, id int64, reason string) error {
	if f.failed == nil {
		f.failed = make(map[int64]string)
	}
	f.failed[id] = reason
	return nil
}

// fakePoster records publish calls and fails per item id
type fakePoster struct {
	calls []int64
	errs  map[int64]error
}

func (f *fakePoster) Publish(ctx context.Context, item *store.ContentItem) error {
	f.calls = append(f.calls, item.ID)
	if err, ok := f.errs[item.ID]; ok {
		return err
	}
	return nil
}

// fakeGuard returns a scripted sequence of validation results
type fakeGuard struct {
	results []session.Result
	calls   int
}

func (f *fakeGuard) Validate(ctx context.Context) session.Result {
	f.calls++
	if len(f.results) == 0 {
		return session.Result{State: session.StateHealthy}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func fastPublisherConfig() *config.PublisherConfig {
	return &config.PublisherConfig{
		MinDelay:          time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		RequestsPerMinute: 100,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
	}
}

func pendingItems(ids ...int64) []*store.ContentItem {
	var items []*store.ContentItem
	for _, id := range ids {
		items = append(items, &store.ContentItem{
			ID:          id,
			ContentType: "post",
			MediaType:   "photo",
			Status:      store.StatusPending,
		})
	}
	return items
}

func TestRunPublishesAllDueItems(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1, 2, 3)}
	poster := &fakePoster{}
	guard := &fakeGuard{}

	pub := New(queue, poster, guard, fastPublisherConfig(), logger.NewTestLogger())
	require.NoError(t, pub.Run(context.Background()))

	assert.Equal(t, []int64{1, 2, 3}, poster.calls)
	assert.Equal(t, []int64{1, 2, 3}, queue.published)
	assert.Empty(t, queue.failed)
	assert.Equal(t, 3, guard.calls, "session validated before every item")
}

func TestRunEmptyQueue(t *testing.T) {
	queue := &fakeQueue{}
	pub := New(queue, &fakePoster{}, &fakeGuard{}, fastPublisherConfig(), logger.NewTestLogger())
	require.NoError(t, pub.Run(context.Background()))
	assert.Empty(t, queue.published)
}

func TestRunHaltsOnFailedSession(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1, 2)}
	poster := &fakePoster{}
	guard := &fakeGuard{results: []session.Result{
		{State: session.StateFailed, Reason: "challenge_required"},
	}}

	pub := New(queue, poster, guard, fastPublisherConfig(), logger.NewTestLogger())
	err := pub.Run(context.Background())

	require.ErrorIs(t, err, ErrSessionFailed)
	assert.Empty(t, poster.calls, "nothing published with a failed session")
	assert.Contains(t, queue.failed, int64(1))
	assert.NotContains(t, queue.failed, int64(2), "loop halts before later items")
}

func TestRunRecoversFromDegradedSession(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1)}
	poster := &fakePoster{}
	guard := &fakeGuard{results: []session.Result{
		{State: session.StateDegraded, Reason: "transient"},
		{State: session.StateHealthy},
	}}

	pub := New(queue, poster, guard, fastPublisherConfig(), logger.NewTestLogger())
	require.NoError(t, pub.Run(context.Background()))

	assert.Equal(t, 2, guard.calls)
	assert.Equal(t, []int64{1}, queue.published)
}

func TestRunGivesUpAfterPersistentDegradation(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1, 2)}
	poster := &fakePoster{}
	guard := &fakeGuard{results: []session.Result{
		{State: session.StateDegraded, Reason: "pool exhausted"},
	}}

	log := logger.NewTestLogger()
	pub := New(queue, poster, guard, fastPublisherConfig(), log)
	require.NoError(t, pub.Run(context.Background()), "degradation on one item does not abort the run")

	// 3 validation attempts per item, both items degraded.
	assert.Equal(t, 6, guard.calls)
	assert.Empty(t, poster.calls)
	assert.True(t, log.HasMessage("ERROR", "failed to publish content"))
}

func TestRunMarksFailedItemAndContinues(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1, 2)}
	poster := &fakePoster{errs: map[int64]error{
		1: errors.New(errors.ErrorTypeUnknown, "bad media"),
	}}
	guard := &fakeGuard{}

	pub := New(queue, poster, guard, fastPublisherConfig(), logger.NewTestLogger())
	require.NoError(t, pub.Run(context.Background()))

	assert.Contains(t, queue.failed[1], "bad media")
	assert.Equal(t, []int64{2}, queue.published, "later items still publish")
}

func TestRunRetriesTransientPublishErrors(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1)}

	attempts := 0
	poster := &scriptedPoster{fn: func(item *store.ContentItem) error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrorTypeServer, "502")
		}
		return nil
	}}

	pub := New(queue, poster, &fakeGuard{}, fastPublisherConfig(), logger.NewTestLogger())
	require.NoError(t, pub.Run(context.Background()))

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{1}, queue.published)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	queue := &fakeQueue{items: pendingItems(1, 2)}
	poster := &fakePoster{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := New(queue, poster, &fakeGuard{}, fastPublisherConfig(), logger.NewTestLogger())
	err := pub.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, poster.calls)
}

// scriptedPoster delegates to a closure
type scriptedPoster struct {
	fn func(item *store.ContentItem) error
}

func (s *scriptedPoster) Publish(ctx context.Context, item *store.ContentItem) error {
	return s.fn(item)
}

