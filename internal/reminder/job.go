package reminder

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is a persisted reminder. Exactly one of Cron and At is set.
type Job struct {
	ID        string
	UserID    string
	ChatID    string
	Message   string
	CreatedAt time.Time
	Cron      string     // 5-field cron expression for recurring jobs
	At        *time.Time // fire time for one-shot jobs
}

// Recurring reports whether the job has a cron schedule.
func (j Job) Recurring() bool { return j.Cron != "" }

// Kind is "recurring" or "once".
func (j Job) Kind() string {
	if j.Recurring() {
		return "recurring"
	}
	return "once"
}

// Schedule renders the job's trigger for display.
func (j Job) Schedule() string {
	if j.Recurring() {
		return "cron " + j.Cron
	}
	if j.At != nil {
		return "at " + j.At.Format(time.RFC3339)
	}
	return "unscheduled"
}

func (j Job) clone() Job {
	if j.At != nil {
		at := *j.At
		j.At = &at
	}
	return j
}

// Draft is the input to Store.Add. Cron and At are raw strings; exactly one
// must be non-blank.
type Draft struct {
	UserID  string
	ChatID  string
	Message string
	Cron    string
	At      string
}

// ValidationError reports a Draft that cannot become a Job.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// record is the on-disk shape of a job inside the {"jobs":[...]} document.
type record struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ChatID    string     `json:"chatId"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	Cron      string     `json:"cron,omitempty"`
	At        *time.Time `json:"at,omitempty"`
}

type document struct {
	Jobs []record `json:"jobs"`
}

func decodeJobs(data []byte) ([]Job, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(doc.Jobs))
	for _, r := range doc.Jobs {
		jobs = append(jobs, Job(r))
	}
	return jobs, nil
}

func encodeJobs(jobs []Job) ([]byte, error) {
	doc := document{Jobs: make([]record, 0, len(jobs))}
	for _, j := range jobs {
		doc.Jobs = append(doc.Jobs, record(j))
	}
	return json.MarshalIndent(doc, "", "  ")
}
