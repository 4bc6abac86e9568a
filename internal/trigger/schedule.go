package trigger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowgate/engine/internal/domain"
)

// cronParser parses standard 5-field cron expressions (minute, hour,
// day-of-month, month, day-of-week — no seconds field).
type cronParser struct {
	parser cron.Parser
}

func newCronParser() cronParser {
	return cronParser{parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)}
}

func (p cronParser) parse(expr string) (cron.Schedule, error) {
	return p.parser.Parse(expr)
}

// isDue reports whether schedule has a fire time t with lastRun < t <= now.
func isDue(schedule cron.Schedule, lastRun, now time.Time) bool {
	next := schedule.Next(lastRun)
	return !next.IsZero() && !next.After(now)
}

// tickSchedules scans every cataloged workflow's enabled ScheduleTrigger
// entries and fires Execute for any that are due. A bad cron expression
// or a failed execution is logged and does not stop the scan.
func (l *Loop) tickSchedules(ctx context.Context) {
	now := time.Now()
	workflows := l.catalog.ListWorkflows(ctx)

	l.scheduleMu.Lock()
	defer l.scheduleMu.Unlock()

	for _, wf := range workflows {
		for _, trig := range wf.Triggers {
			if trig.Kind != domain.TriggerKindSchedule || trig.Schedule == nil || !trig.Schedule.Enabled {
				continue
			}
			l.evaluateSchedule(ctx, wf, trig, now)
		}
	}
}

func (l *Loop) evaluateSchedule(ctx context.Context, wf domain.WorkflowSpec, trig domain.Trigger, now time.Time) {
	key := scopeKey(wf.Name, trig.ID)

	schedule, err := l.parser.parse(trig.Schedule.Cron)
	if err != nil {
		l.log.WarnContext(ctx, "trigger: invalid cron expression, skipping", "workflow", wf.Name, "trigger", trig.ID, "cron", trig.Schedule.Cron, "error", err)
		return
	}

	// First observation of this trigger: the engine keeps no persistent
	// lastRun store, so there is no earlier fire time to catch up on. Treat
	// it as the zero time rather than now, so the schedule's first due time
	// in the current window still fires exactly once, instead of silently
	// swallowing it.
	lastRun, seen := l.lastRun[key]
	if !seen {
		lastRun = time.Time{}
	}

	if !isDue(schedule, lastRun, now) {
		return
	}
	l.lastRun[key] = now

	input := trig.Schedule.Input
	go func() {
		if _, err := l.executor.Execute(ctx, wf, l.catalog, input); err != nil {
			l.log.ErrorContext(ctx, "trigger: scheduled execution failed", "workflow", wf.Name, "trigger", trig.ID, "error", err)
		}
	}()
}
