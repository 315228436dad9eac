package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubSender struct {
	mu   sync.Mutex
	sent []FollowUp
	fail bool
	err  error
}

func (s *stubSender) sendReminder(_ context.Context, entry FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		if s.err != nil {
			return s.err
		}
		return errors.New("send failed")
	}
	s.sent = append(s.sent, entry)
	return nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestFollowUpEscalation(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)
	sender := &stubSender{}
	ctx := context.Background()

	store.Add(7, "670527426", "Alice", 4500)

	t.Run("no reminder before two hours", func(t *testing.T) {
		clock.Advance(time.Hour)
		store.Tick(ctx, sender)
		assert.Equal(t, 0, sender.count())
		entry, _ := store.Get(7)
		assert.Equal(t, FollowUpPending, entry.Status)
	})

	t.Run("first reminder at two hours", func(t *testing.T) {
		clock.Advance(time.Hour)
		store.Tick(ctx, sender)
		require.Equal(t, 1, sender.count())
		entry, _ := store.Get(7)
		assert.Equal(t, FollowUpRemindedOnce, entry.Status)
		assert.Equal(t, 1, entry.ReminderCount)
		require.NotNil(t, entry.LastReminderAt)
	})

	t.Run("no second reminder before 24h since first", func(t *testing.T) {
		clock.Advance(23 * time.Hour)
		store.Tick(ctx, sender)
		assert.Equal(t, 1, sender.count())
	})

	t.Run("second reminder 24h after first", func(t *testing.T) {
		clock.Advance(time.Hour)
		store.Tick(ctx, sender)
		require.Equal(t, 2, sender.count())
		entry, _ := store.Get(7)
		assert.Equal(t, FollowUpRemindedTwice, entry.Status)
	})

	t.Run("abandoned 48h after second without a send", func(t *testing.T) {
		clock.Advance(48 * time.Hour)
		store.Tick(ctx, sender)
		assert.Equal(t, 2, sender.count(), "abandonment must not send a message")
		entry, _ := store.Get(7)
		assert.Equal(t, FollowUpAbandoned, entry.Status)
	})

	t.Run("abandoned entries stay abandoned", func(t *testing.T) {
		clock.Advance(100 * time.Hour)
		store.Tick(ctx, sender)
		assert.Equal(t, 2, sender.count())
		entry, _ := store.Get(7)
		assert.Equal(t, FollowUpAbandoned, entry.Status)
	})
}

func TestFollowUpFailedSendLeavesEntryUntouched(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)
	sender := &stubSender{fail: true}
	ctx := context.Background()

	store.Add(9, "670527426", "Bob", 2000)
	clock.Advance(3 * time.Hour)
	store.Tick(ctx, sender)

	entry, ok := store.Get(9)
	require.True(t, ok)
	assert.Equal(t, FollowUpPending, entry.Status)
	assert.Equal(t, 0, entry.ReminderCount)

	// Next tick retries once the sender recovers.
	sender.fail = false
	store.Tick(ctx, sender)
	entry, _ = store.Get(9)
	assert.Equal(t, FollowUpRemindedOnce, entry.Status)
}

func TestFollowUpAddReplacesEntry(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)

	first := store.Add(7, "670527426", "Alice", 4500)
	clock.Advance(5 * time.Hour)
	second := store.Add(7, "670527426", "Alice", 5000)

	assert.NotEqual(t, first.ID, second.ID)
	entry, ok := store.Get(7)
	require.True(t, ok)
	assert.Equal(t, FollowUpPending, entry.Status)
	assert.Equal(t, 5000.0, entry.TotalAmount)
	assert.Len(t, store.List(), 1)
}

func TestFollowUpRemove(t *testing.T) {
	store := NewFollowUpStore(nil)
	store.Add(7, "670527426", "Alice", 4500)

	assert.True(t, store.Remove(7))
	assert.False(t, store.Remove(7))
	_, ok := store.Get(7)
	assert.False(t, ok)
}

func TestFollowUpListOrderedByCreation(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)

	store.Add(3, "670000003", "C", 300)
	clock.Advance(time.Minute)
	store.Add(1, "670000001", "A", 100)
	clock.Advance(time.Minute)
	store.Add(2, "670000002", "B", 200)

	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].OrderID)
	assert.Equal(t, int64(1), list[1].OrderID)
	assert.Equal(t, int64(2), list[2].OrderID)
}

func TestFollowUpAnalytics(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)
	sender := &stubSender{}
	ctx := context.Background()

	store.Add(1, "670000001", "A", 1000)
	store.Add(2, "670000002", "B", 3000)

	clock.Advance(3 * time.Hour)
	store.Tick(ctx, sender) // both reminded once
	clock.Advance(25 * time.Hour)
	store.Tick(ctx, sender) // both reminded twice
	clock.Advance(49 * time.Hour)
	store.Tick(ctx, sender) // both abandoned
	store.Remove(1)
	store.Add(1, "670000001", "A", 1000) // fresh pending again

	analytics := store.Analytics(30)
	assert.Equal(t, 2, analytics.TotalTransactions)
	assert.Equal(t, 4000.0, analytics.TotalValue)
	assert.Equal(t, 2000.0, analytics.AverageValue)
	assert.Equal(t, 1, analytics.StatusBreakdown.Pending)
	assert.Equal(t, 1, analytics.StatusBreakdown.Abandoned)
	assert.Equal(t, 50.0, analytics.ConversionRate)
	assert.Equal(t, "Last 30 days", analytics.Period)
}

func TestFollowUpAnalyticsWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC))
	store := NewFollowUpStore(clock.Now)

	store.Add(1, "670000001", "Old", 1000)
	clock.Advance(40 * 24 * time.Hour)
	store.Add(2, "670000002", "New", 2000)

	analytics := store.Analytics(30)
	assert.Equal(t, 1, analytics.TotalTransactions)
	assert.Equal(t, 2000.0, analytics.TotalValue)
}

func TestFollowUpSummary(t *testing.T) {
	store := NewFollowUpStore(nil)
	store.Add(1, "670000001", "A", 100)
	store.Add(2, "670000002", "B", 200)

	summary := store.Summary()
	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 0, summary.Abandoned)
}
