package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lchbot/internal/event"
	"lchbot/internal/onebot"
	"lchbot/internal/plugin"
	"lchbot/pkg/logger"
)

// Sender is the outbound surface the plugin needs to answer queries.
type Sender interface {
	SendGroupMsg(ctx context.Context, groupID int64, message string) (*onebot.Ack, error)
	SendPrivateMsg(ctx context.Context, userID int64, message string) (*onebot.Ack, error)
}

// Plugin is the activity-tracking plugin. It records every group message it
// sees through the standard handler contract (no privileged path) and
// answers activity.report / activity.user / activity.trend commands.
//
// It runs early in the chain (low priority value) so messages consumed by
// later command plugins are still counted, and it never consumes ordinary
// messages itself.
type Plugin struct {
	plugin.Base
	agg    *Aggregator
	sender Sender
}

// NewPlugin creates the activity plugin over the given aggregator.
func NewPlugin(agg *Aggregator, sender Sender) *Plugin {
	return &Plugin{agg: agg, sender: sender}
}

// Meta implements plugin.Handler.
func (p *Plugin) Meta() plugin.Meta {
	return plugin.Meta{
		ID:       "activity_tracker",
		Name:     "ActivityTracker",
		Priority: 10,
	}
}

// HandleMessage records the message and serves activity commands.
func (p *Plugin) HandleMessage(ctx context.Context, ev *event.Event) (bool, error) {
	p.agg.Record(ev)

	sub, ok := subcommand(ev.Command)
	if !ok {
		return false, nil
	}

	if !ev.IsGroup() {
		p.reply(ctx, ev, "activity commands only work in group chats")
		return true, nil
	}

	args := commandArgs(ev)
	logger.Info().
		Int64("group", ev.GroupID).
		Str("subcommand", sub).
		Strs("args", args).
		Msg("activity command")

	switch sub {
	case "", "report":
		days := 7
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				p.reply(ctx, ev, "usage: /activity.report [days]")
				return true, nil
			}
			days = n
		}
		if days < 1 {
			days = 1
		}
		if days > 30 {
			days = 30
		}
		p.reply(ctx, ev, formatReport(p.agg.GroupReport(ev.GroupID, days), days))
	case "user":
		if len(args) == 0 {
			p.reply(ctx, ev, "usage: /activity.user <user_id>")
			return true, nil
		}
		target, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || target <= 0 {
			p.reply(ctx, ev, "usage: /activity.user <user_id>")
			return true, nil
		}
		rep := p.agg.GroupReport(ev.GroupID, p.agg.retention)
		p.reply(ctx, ev, formatUserActivity(target, p.agg.UserActivity(ev.GroupID, target), rep))
	case "trend":
		rep := p.agg.GroupReport(ev.GroupID, p.agg.retention)
		p.reply(ctx, ev, formatTrend(ev.GroupID, rep, p.agg.Trend(ev.GroupID)))
	default:
		p.reply(ctx, ev, fmt.Sprintf("unknown subcommand %q, available: report, user, trend", sub))
	}
	return true, nil
}

// subcommand splits an "activity.<sub>" command token. The bare "activity"
// command is an alias for report.
func subcommand(command string) (string, bool) {
	if command == "activity" {
		return "", true
	}
	if rest, ok := strings.CutPrefix(command, "activity."); ok {
		return rest, true
	}
	return "", false
}

func commandArgs(ev *event.Event) []string {
	fields := strings.Fields(ev.PlainText())
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// reply sends a response and logs a send failure; the command is considered
// handled either way, per the fails-fast outbound policy.
func (p *Plugin) reply(ctx context.Context, ev *event.Event, message string) {
	var err error
	if ev.IsGroup() {
		_, err = p.sender.SendGroupMsg(ctx, ev.GroupID, message)
	} else {
		_, err = p.sender.SendPrivateMsg(ctx, ev.UserID, message)
	}
	if err != nil {
		logger.Warn().
			Int64("group", ev.GroupID).
			Int64("user", ev.UserID).
			Err(err).
			Msg("activity reply failed")
	}
}

func formatReport(rep *Report, requestedDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[group %d activity, last %d day(s)]\n", rep.GroupID, len(rep.Days))
	if rep.Truncated {
		fmt.Fprintf(&b, "(requested %d days, truncated to retained window)\n", requestedDays)
	}
	fmt.Fprintf(&b, "total messages: %d\n", rep.TotalMessages)
	fmt.Fprintf(&b, "active users: %d\n", rep.ActiveUsers)

	if len(rep.TopUsers) > 0 {
		b.WriteString("\ntop users:\n")
		for i, user := range rep.TopUsers {
			fmt.Fprintf(&b, "%d. %d - %d message(s)\n", i+1, user.UserID, user.Count)
		}
	}

	if len(rep.Types) > 0 {
		b.WriteString("\nmessage types:\n")
		for _, class := range sortedTypes(rep.Types) {
			count := rep.Types[class]
			pct := 0.0
			if rep.TotalMessages > 0 {
				pct = float64(count) / float64(rep.TotalMessages) * 100
			}
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", class, count, pct)
		}
	}

	if peak, count := peakHour(rep.Hours); count > 0 {
		fmt.Fprintf(&b, "\npeak hour: %02d:00-%02d:00 (%d message(s))\n", peak, peak+1, count)
	}

	b.WriteString("\ndaily:\n")
	for _, day := range rep.Days {
		fmt.Fprintf(&b, "- %s: %d message(s), %d active user(s)\n", day.Date, day.Messages, day.ActiveUsers)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatUserActivity(userID int64, days []UserDay, rep *Report) string {
	total := 0
	for _, day := range days {
		total += day.Count
	}
	if total == 0 {
		return fmt.Sprintf("user %d has no messages in the retained window", userID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[user %d activity]\n", userID)
	fmt.Fprintf(&b, "total messages: %d\n", total)
	if rep.TotalMessages > 0 {
		fmt.Fprintf(&b, "share of group traffic: %.1f%%\n", float64(total)/float64(rep.TotalMessages)*100)
	}
	b.WriteString("per day:\n")
	for _, day := range days {
		fmt.Fprintf(&b, "- %s: %d\n", day.Date, day.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTrend(groupID int64, rep *Report, hourly []HourCount) string {
	if rep.TotalMessages == 0 {
		return fmt.Sprintf("no activity recorded for group %d yet", groupID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[group %d activity trend]\n", groupID)
	b.WriteString("date          messages  users\n")
	for _, day := range rep.Days {
		fmt.Fprintf(&b, "%s  %8d  %5d\n", day.Date, day.Messages, day.ActiveUsers)
	}

	if peak, count := peakTrendHour(hourly); count > 0 {
		fmt.Fprintf(&b, "\npeak hour: %02d:00-%02d:00 (%d message(s))\n", peak, peak+1, count)
	}

	if len(rep.Days) >= 2 {
		first := rep.Days[0].Messages
		last := rep.Days[len(rep.Days)-1].Messages
		switch {
		case last > first:
			fmt.Fprintf(&b, "\nmessage volume is rising (+%d vs first day)", last-first)
		case last < first:
			fmt.Fprintf(&b, "\nmessage volume is falling (-%d vs first day)", first-last)
		default:
			b.WriteString("\nmessage volume is stable")
		}
	}
	return b.String()
}

func sortedTypes(types map[string]int) []string {
	order := []string{"text", "image", "mixed", "other"}
	var out []string
	for _, class := range order {
		if _, ok := types[class]; ok {
			out = append(out, class)
		}
	}
	for class := range types {
		known := false
		for _, o := range order {
			if class == o {
				known = true
				break
			}
		}
		if !known {
			out = append(out, class)
		}
	}
	return out
}

func peakTrendHour(hourly []HourCount) (int, int) {
	peak, best := 0, 0
	for _, hc := range hourly {
		if hc.Count > best {
			peak, best = hc.Hour, hc.Count
		}
	}
	return peak, best
}

func peakHour(hours [24]int) (int, int) {
	peak, best := 0, 0
	for hour, count := range hours {
		if count > best {
			peak, best = hour, count
		}
	}
	return peak, best
}
