// Package activity maintains rolling, time-bucketed counters of group
// message activity and answers report, trend and per-user queries over the
// retained window.
package activity

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"lchbot/internal/event"
)

const dayKeyFormat = "2006-01-02"

// Config configures the aggregator. RetentionDays must be explicit; there is
// no implicit horizon.
type Config struct {
	RetentionDays int
	TopN          int
	// Now is the clock used for windows and sweeps. Nil means time.Now.
	Now func() time.Time
}

// dayBucket holds one group's counters for a single calendar day. Counters
// only ever increase; a bucket is evicted wholesale by the retention sweep.
type dayBucket struct {
	Messages int           `json:"messages"`
	Users    map[int64]int `json:"users"`
	Types    map[string]int `json:"types"`
	Hours    [24]int       `json:"hours"`
}

func newDayBucket() *dayBucket {
	return &dayBucket{
		Users: make(map[int64]int),
		Types: make(map[string]int),
	}
}

// groupStats holds a group's day buckets. The per-group mutex makes each
// increment atomic with respect to other increments and to reads on the same
// group, without serializing unrelated groups.
type groupStats struct {
	mu   sync.Mutex
	days map[string]*dayBucket
	// dead is set under mu when the sweep drops this group from the map;
	// a writer holding a stale pointer must re-resolve the group.
	dead bool
}

// Aggregator tracks per-group, per-user message activity.
type Aggregator struct {
	mu     sync.RWMutex // guards the groups map
	groups map[int64]*groupStats

	retention int
	topN      int
	now       func() time.Time
}

// New creates an aggregator with the given configuration.
func New(cfg Config) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		groups:    make(map[int64]*groupStats),
		retention: cfg.RetentionDays,
		topN:      topN,
		now:       now,
	}
}

func (a *Aggregator) group(groupID int64) *groupStats {
	a.mu.RLock()
	g, ok := a.groups[groupID]
	a.mu.RUnlock()
	if ok {
		return g
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok = a.groups[groupID]; ok {
		return g
	}
	g = &groupStats{days: make(map[string]*dayBucket)}
	a.groups[groupID] = g
	return g
}

// lookup returns the group's stats without allocating; nil when the group has
// never recorded a message.
func (a *Aggregator) lookup(groupID int64) *groupStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.groups[groupID]
}

// Record increments the (group, user, day, hour, type) counters for one
// message. Events without a group identifier are ignored: private chats are
// excluded from group aggregation.
func (a *Aggregator) Record(ev *event.Event) {
	if ev.Kind != event.KindMessage || ev.GroupID == 0 || ev.UserID == 0 {
		return
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = a.now()
	}
	day := ts.Format(dayKeyFormat)
	class := ev.MessageClass()

	for {
		g := a.group(ev.GroupID)
		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		bucket, ok := g.days[day]
		if !ok {
			bucket = newDayBucket()
			g.days[day] = bucket
		}
		bucket.Messages++
		bucket.Users[ev.UserID]++
		bucket.Types[class]++
		bucket.Hours[ts.Hour()]++
		g.mu.Unlock()
		return
	}
}

// DailyActiveUsers returns the number of distinct users with at least one
// message in the group on the given day.
func (a *Aggregator) DailyActiveUsers(groupID int64, day time.Time) int {
	g := a.lookup(groupID)
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, ok := g.days[day.Format(dayKeyFormat)]
	if !ok {
		return 0
	}
	return len(bucket.Users)
}

// UserCount pairs a user with a message count.
type UserCount struct {
	UserID int64 `json:"user_id"`
	Count  int   `json:"count"`
}

// DayStat summarizes one day of a report window.
type DayStat struct {
	Date        string `json:"date"`
	Messages    int    `json:"messages"`
	ActiveUsers int    `json:"active_users"`
}

// Report summarizes a group's activity over a window of days.
type Report struct {
	GroupID       int64          `json:"group_id"`
	Days          []DayStat      `json:"days"`
	TotalMessages int            `json:"total_messages"`
	ActiveUsers   int            `json:"active_users"`
	TopUsers      []UserCount    `json:"top_users"`
	Types         map[string]int `json:"types"`
	Hours         [24]int        `json:"hours"`
	// Truncated is set when the requested window exceeded the retention
	// horizon and the report covers only the retained part.
	Truncated bool `json:"truncated,omitempty"`
}

// GroupReport sums buckets over the last nDays calendar days (ending today).
// A window larger than the retention horizon is clamped and flagged.
func (a *Aggregator) GroupReport(groupID int64, nDays int) *Report {
	truncated := false
	if nDays > a.retention {
		nDays = a.retention
		truncated = true
	}
	if nDays < 1 {
		nDays = 1
	}

	rep := &Report{
		GroupID:   groupID,
		Types:     make(map[string]int),
		Truncated: truncated,
	}
	userTotals := make(map[int64]int)
	today := a.now()

	g := a.lookup(groupID)
	if g != nil {
		g.mu.Lock()
	}
	for i := nDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(dayKeyFormat)
		stat := DayStat{Date: day}
		if g != nil {
			if bucket, ok := g.days[day]; ok {
				stat.Messages = bucket.Messages
				stat.ActiveUsers = len(bucket.Users)
				rep.TotalMessages += bucket.Messages
				for user, count := range bucket.Users {
					userTotals[user] += count
				}
				for class, count := range bucket.Types {
					rep.Types[class] += count
				}
				for hour, count := range bucket.Hours {
					rep.Hours[hour] += count
				}
			}
		}
		rep.Days = append(rep.Days, stat)
	}
	if g != nil {
		g.mu.Unlock()
	}

	rep.ActiveUsers = len(userTotals)
	rep.TopUsers = topUsers(userTotals, a.topN)
	return rep
}

func topUsers(totals map[int64]int, n int) []UserCount {
	users := make([]UserCount, 0, len(totals))
	for user, count := range totals {
		users = append(users, UserCount{UserID: user, Count: count})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Count != users[j].Count {
			return users[i].Count > users[j].Count
		}
		return users[i].UserID < users[j].UserID
	})
	if len(users) > n {
		users = users[:n]
	}
	return users
}

// UserDay is a user's message count for one day.
type UserDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UserActivity returns the user's per-day message counts over the full
// retained window, oldest day first.
func (a *Aggregator) UserActivity(groupID, userID int64) []UserDay {
	today := a.now()
	g := a.lookup(groupID)
	if g != nil {
		g.mu.Lock()
		defer g.mu.Unlock()
	}

	var days []UserDay
	for i := a.retention - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(dayKeyFormat)
		count := 0
		if g != nil {
			if bucket, ok := g.days[day]; ok {
				count = bucket.Users[userID]
			}
		}
		days = append(days, UserDay{Date: day, Count: count})
	}
	return days
}

// HourCount is an aggregate message count for one hour of day.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Trend aggregates hour-of-day counts across the full retained window,
// ordered by hour. Used to surface peak-activity hours.
func (a *Aggregator) Trend(groupID int64) []HourCount {
	var hours [24]int
	if g := a.lookup(groupID); g != nil {
		g.mu.Lock()
		for _, bucket := range g.days {
			for hour, count := range bucket.Hours {
				hours[hour] += count
			}
		}
		g.mu.Unlock()
	}

	trend := make([]HourCount, 24)
	for hour, count := range hours {
		trend[hour] = HourCount{Hour: hour, Count: count}
	}
	return trend
}

// Sweep evicts buckets older than the retention horizon and returns the
// number of buckets dropped. Each group's eviction runs under that group's
// lock so queries never observe a torn map. Groups left without any bucket
// are removed from the registry.
func (a *Aggregator) Sweep() int {
	cutoff := a.now().AddDate(0, 0, -a.retention).Format(dayKeyFormat)

	a.mu.RLock()
	groups := make(map[int64]*groupStats, len(a.groups))
	for groupID, g := range a.groups {
		groups[groupID] = g
	}
	a.mu.RUnlock()

	evicted := 0
	for groupID, g := range groups {
		g.mu.Lock()
		for day := range g.days {
			if day < cutoff {
				delete(g.days, day)
				evicted++
			}
		}
		empty := len(g.days) == 0
		g.mu.Unlock()

		if empty {
			a.dropIfEmpty(groupID, g)
		}
	}
	return evicted
}

// dropIfEmpty removes a group that has no buckets left. The recheck under
// both locks and the dead flag keep a concurrent Record from writing into a
// group that is no longer in the registry.
func (a *Aggregator) dropIfEmpty(groupID int64, g *groupStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.days) == 0 && a.groups[groupID] == g {
		g.dead = true
		delete(a.groups, groupID)
	}
}

// snapshot is the persisted form of the aggregator state.
type snapshot struct {
	Groups map[int64]map[string]*dayBucket `json:"groups"`
}

// Snapshot serializes all buckets, for persistence across restarts.
func (a *Aggregator) Snapshot() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := snapshot{Groups: make(map[int64]map[string]*dayBucket, len(a.groups))}
	for groupID, g := range a.groups {
		g.mu.Lock()
		days := make(map[string]*dayBucket, len(g.days))
		for day, bucket := range g.days {
			copied := *bucket
			copied.Users = make(map[int64]int, len(bucket.Users))
			for u, c := range bucket.Users {
				copied.Users[u] = c
			}
			copied.Types = make(map[string]int, len(bucket.Types))
			for t, c := range bucket.Types {
				copied.Types[t] = c
			}
			days[day] = &copied
		}
		g.mu.Unlock()
		snap.Groups[groupID] = days
	}
	return json.Marshal(snap)
}

// Restore replaces the aggregator state with a previously taken snapshot and
// sweeps anything already past the horizon.
func (a *Aggregator) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	groups := make(map[int64]*groupStats, len(snap.Groups))
	for groupID, days := range snap.Groups {
		g := &groupStats{days: make(map[string]*dayBucket, len(days))}
		for day, bucket := range days {
			if bucket.Users == nil {
				bucket.Users = make(map[int64]int)
			}
			if bucket.Types == nil {
				bucket.Types = make(map[string]int)
			}
			g.days[day] = bucket
		}
		groups[groupID] = g
	}

	a.mu.Lock()
	a.groups = groups
	a.mu.Unlock()

	a.Sweep()
	return nil
}
