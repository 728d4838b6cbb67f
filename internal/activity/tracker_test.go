package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lchbot/internal/event"
)

// fixedNow pins the aggregator clock so day windows are deterministic.
var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func newTestAggregator(retention int) *Aggregator {
	return New(Config{
		RetentionDays: retention,
		TopN:          10,
		Now:           func() time.Time { return fixedNow },
	})
}

func groupMessage(groupID, userID int64, at time.Time) *event.Event {
	return &event.Event{
		Kind:     event.KindMessage,
		Time:     at,
		GroupID:  groupID,
		UserID:   userID,
		Segments: []event.Segment{{Type: "text", Data: map[string]any{"text": "hi"}}},
	}
}

func TestRecordCountsMessages(t *testing.T) {
	agg := newTestAggregator(7)

	for i := 0; i < 3; i++ {
		agg.Record(groupMessage(100, 1, fixedNow))
	}

	rep := agg.GroupReport(100, 1)
	assert.Equal(t, 3, rep.TotalMessages)
	assert.Equal(t, 1, rep.ActiveUsers)
	require.Len(t, rep.TopUsers, 1)
	assert.Equal(t, UserCount{UserID: 1, Count: 3}, rep.TopUsers[0])
}

func TestDailyActiveUsersDistinct(t *testing.T) {
	agg := newTestAggregator(7)

	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(groupMessage(100, 2, fixedNow))

	assert.Equal(t, 2, agg.DailyActiveUsers(100, fixedNow))
	assert.Equal(t, 0, agg.DailyActiveUsers(100, fixedNow.AddDate(0, 0, -1)))
	assert.Equal(t, 0, agg.DailyActiveUsers(999, fixedNow))
}

func TestPrivateMessagesIgnored(t *testing.T) {
	agg := newTestAggregator(7)

	agg.Record(&event.Event{Kind: event.KindMessage, Time: fixedNow, UserID: 1})
	agg.Record(&event.Event{Kind: event.KindNotice, Time: fixedNow, GroupID: 100, UserID: 1})

	assert.Equal(t, 0, agg.GroupReport(100, 7).TotalMessages)
}

func TestGroupReportWindow(t *testing.T) {
	agg := newTestAggregator(7)

	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(groupMessage(100, 2, fixedNow.AddDate(0, 0, -2)))
	// Just past a 3-day window, still inside retention.
	agg.Record(groupMessage(100, 3, fixedNow.AddDate(0, 0, -3)))

	rep := agg.GroupReport(100, 3)
	assert.Equal(t, 2, rep.TotalMessages)
	assert.Equal(t, 2, rep.ActiveUsers)
	assert.False(t, rep.Truncated)

	// Zero days are reported explicitly, oldest first.
	require.Len(t, rep.Days, 3)
	assert.Equal(t, fixedNow.AddDate(0, 0, -2).Format(dayKeyFormat), rep.Days[0].Date)
	assert.Equal(t, 1, rep.Days[0].Messages)
	assert.Equal(t, 0, rep.Days[1].Messages)
	assert.Equal(t, 1, rep.Days[2].Messages)
}

func TestGroupReportClampsToRetention(t *testing.T) {
	agg := newTestAggregator(7)
	agg.Record(groupMessage(100, 1, fixedNow))

	rep := agg.GroupReport(100, 30)
	assert.True(t, rep.Truncated)
	assert.Len(t, rep.Days, 7)
}

func TestTopUsersOrderAndTieBreak(t *testing.T) {
	agg := New(Config{
		RetentionDays: 7,
		TopN:          2,
		Now:           func() time.Time { return fixedNow },
	})

	agg.Record(groupMessage(100, 30, fixedNow))
	agg.Record(groupMessage(100, 30, fixedNow))
	agg.Record(groupMessage(100, 10, fixedNow))
	agg.Record(groupMessage(100, 20, fixedNow))

	top := agg.GroupReport(100, 1).TopUsers
	require.Len(t, top, 2)
	assert.Equal(t, UserCount{UserID: 30, Count: 2}, top[0])
	// Equal counts break ties by user ID.
	assert.Equal(t, UserCount{UserID: 10, Count: 1}, top[1])
}

func TestUserActivityFullWindow(t *testing.T) {
	agg := newTestAggregator(3)

	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(groupMessage(100, 1, fixedNow.AddDate(0, 0, -2)))
	agg.Record(groupMessage(100, 2, fixedNow))

	days := agg.UserActivity(100, 1)
	require.Len(t, days, 3)
	assert.Equal(t, fixedNow.AddDate(0, 0, -2).Format(dayKeyFormat), days[0].Date)
	assert.Equal(t, 1, days[0].Count)
	assert.Equal(t, 0, days[1].Count)
	assert.Equal(t, 1, days[2].Count)
}

func TestTrendByHour(t *testing.T) {
	agg := newTestAggregator(7)

	at9 := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	agg.Record(groupMessage(100, 1, at9))
	agg.Record(groupMessage(100, 2, at9))
	agg.Record(groupMessage(100, 1, fixedNow)) // 14:30

	trend := agg.Trend(100)
	require.Len(t, trend, 24)
	assert.Equal(t, HourCount{Hour: 9, Count: 2}, trend[9])
	assert.Equal(t, HourCount{Hour: 14, Count: 1}, trend[14])
	assert.Equal(t, HourCount{Hour: 0, Count: 0}, trend[0])
}

func TestSweepEvictsExpiredBuckets(t *testing.T) {
	agg := newTestAggregator(7)

	stale := fixedNow.AddDate(0, 0, -8)
	agg.Record(groupMessage(100, 1, stale))
	agg.Record(groupMessage(100, 1, fixedNow))

	// Present before the sweep.
	assert.Equal(t, 1, agg.DailyActiveUsers(100, stale))

	assert.Equal(t, 1, agg.Sweep())

	// Absent after, current day untouched.
	assert.Equal(t, 0, agg.DailyActiveUsers(100, stale))
	assert.Equal(t, 1, agg.DailyActiveUsers(100, fixedNow))

	// A second sweep finds nothing.
	assert.Equal(t, 0, agg.Sweep())
}

func TestConcurrentRecordAndQuery(t *testing.T) {
	agg := newTestAggregator(7)

	const writers = 8
	const perWriter = 500

	stop := make(chan struct{})

	// Readers run the full query surface while writers increment.
	var readers sync.WaitGroup
	for i := 0; i < 2; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				agg.GroupReport(100, 7)
				agg.Trend(100)
				agg.DailyActiveUsers(100, fixedNow)
				agg.UserActivity(100, 1)
			}
		}()
	}

	var writersWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(userID int64) {
			defer writersWG.Done()
			for i := 0; i < perWriter; i++ {
				agg.Record(groupMessage(100, userID, fixedNow))
			}
		}(int64(w + 1))
	}

	writersWG.Wait()
	close(stop)
	readers.Wait()

	rep := agg.GroupReport(100, 1)
	assert.Equal(t, writers*perWriter, rep.TotalMessages, "no increment may be lost")
	assert.Equal(t, writers, rep.ActiveUsers)
	for _, top := range rep.TopUsers {
		assert.Equal(t, perWriter, top.Count)
	}
}

func TestConcurrentRecordDuringSweep(t *testing.T) {
	agg := newTestAggregator(7)
	stale := fixedNow.AddDate(0, 0, -8)

	const writers = 4
	const perWriter = 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				agg.Record(groupMessage(100, userID, fixedNow))
			}
		}(int64(w + 1))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			agg.Record(groupMessage(200, 9, stale))
			agg.Sweep()
		}
	}()
	wg.Wait()

	agg.Sweep()
	rep := agg.GroupReport(100, 1)
	assert.Equal(t, writers*perWriter, rep.TotalMessages)
	assert.Equal(t, 0, agg.DailyActiveUsers(200, stale))
}

func TestQueriesOnUnknownGroupDoNotAllocate(t *testing.T) {
	agg := newTestAggregator(7)

	assert.Equal(t, 0, agg.DailyActiveUsers(999, fixedNow))
	assert.Equal(t, 0, agg.GroupReport(999, 7).TotalMessages)
	assert.Len(t, agg.UserActivity(999, 1), 7)
	assert.Len(t, agg.Trend(999), 24)

	agg.mu.RLock()
	defer agg.mu.RUnlock()
	assert.Empty(t, agg.groups, "read-only queries must not create group entries")
}

func TestSweepDropsEmptiedGroups(t *testing.T) {
	agg := newTestAggregator(7)

	stale := fixedNow.AddDate(0, 0, -8)
	agg.Record(groupMessage(100, 1, stale))
	agg.Record(groupMessage(200, 2, fixedNow))

	assert.Equal(t, 1, agg.Sweep())

	agg.mu.RLock()
	_, staleKept := agg.groups[100]
	_, freshKept := agg.groups[200]
	agg.mu.RUnlock()
	assert.False(t, staleKept, "group with no buckets left must be dropped")
	assert.True(t, freshKept)

	// A dropped group starts fresh on the next message.
	agg.Record(groupMessage(100, 1, fixedNow))
	assert.Equal(t, 1, agg.GroupReport(100, 1).TotalMessages)
}

func TestMessageTypeBreakdown(t *testing.T) {
	agg := newTestAggregator(7)

	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(&event.Event{
		Kind: event.KindMessage, Time: fixedNow, GroupID: 100, UserID: 1,
		Segments: []event.Segment{{Type: "image", Data: map[string]any{"file": "a.png"}}},
	})

	rep := agg.GroupReport(100, 1)
	assert.Equal(t, 1, rep.Types["text"])
	assert.Equal(t, 1, rep.Types["image"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	agg := newTestAggregator(7)
	agg.Record(groupMessage(100, 1, fixedNow))
	agg.Record(groupMessage(100, 2, fixedNow.AddDate(0, 0, -1)))
	agg.Record(groupMessage(200, 3, fixedNow))

	data, err := agg.Snapshot()
	require.NoError(t, err)

	restored := newTestAggregator(7)
	require.NoError(t, restored.Restore(data))

	rep := restored.GroupReport(100, 7)
	assert.Equal(t, 2, rep.TotalMessages)
	assert.Equal(t, 2, rep.ActiveUsers)
	assert.Equal(t, 1, restored.GroupReport(200, 7).TotalMessages)
}

func TestRestoreSweepsExpired(t *testing.T) {
	agg := newTestAggregator(7)
	stale := fixedNow.AddDate(0, 0, -10)
	agg.Record(groupMessage(100, 1, stale))
	agg.Record(groupMessage(100, 1, fixedNow))

	data, err := agg.Snapshot()
	require.NoError(t, err)

	restored := newTestAggregator(7)
	require.NoError(t, restored.Restore(data))

	assert.Equal(t, 0, restored.DailyActiveUsers(100, stale))
	assert.Equal(t, 1, restored.DailyActiveUsers(100, fixedNow))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	agg := newTestAggregator(7)
	agg.Record(groupMessage(100, 1, fixedNow))

	data, err := agg.Snapshot()
	require.NoError(t, err)

	// Mutations after the snapshot must not show up in the restored state.
	agg.Record(groupMessage(100, 1, fixedNow))

	restored := newTestAggregator(7)
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, 1, restored.GroupReport(100, 1).TotalMessages)
}
