package reminder

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Standard 5-field cron: minute hour day-of-month month day-of-week.
// Descriptors such as @every are rejected since they have no fixed minute.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// isDue reports whether j should fire at now. One-shot jobs are due once
// their time has passed. A recurring job is due when its schedule's first
// occurrence after the end of the previous minute falls within the minute
// containing now.
func isDue(j Job, now time.Time, loc *time.Location) bool {
	if !j.Recurring() {
		return j.At != nil && !j.At.After(now)
	}
	sched, err := parseCron(j.Cron)
	if err != nil {
		return false
	}
	startOfMinute := minuteOf(now, loc)
	prev := startOfMinute.Add(-time.Millisecond)
	next := sched.Next(prev)
	return !next.IsZero() && !next.After(startOfMinute)
}

func minuteOf(t time.Time, loc *time.Location) time.Time {
	return t.In(loc).Truncate(time.Minute)
}
