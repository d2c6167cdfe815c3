package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocumentKey names the job set inside a Documents backend.
const DocumentKey = "jobs"

// Documents persists whole documents by key. Load returns nil when the key
// has never been saved.
type Documents interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, body []byte) error
}

// Store keeps the job set as a single document, rewritten on every mutation.
// Its own read-modify-write cycles are serialized; writers in other
// processes sharing the same backend can still lose updates.
type Store struct {
	docs   Documents
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

type StoreOption func(*Store)

// WithLocation sets the zone for cron evaluation and zone-less one-shot times.
func WithLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(docs Documents, opts ...StoreOption) *Store {
	s := &Store{
		docs:   docs,
		loc:    time.Local,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location returns the zone used for due-time evaluation.
func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) load(ctx context.Context) ([]Job, error) {
	data, err := s.docs.Load(ctx, DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("loading reminders: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	jobs, err := decodeJobs(data)
	if err != nil {
		s.logger.Warn("reminder document is corrupt, treating as empty", "error", err)
		return nil, nil
	}
	return jobs, nil
}

func (s *Store) save(ctx context.Context, jobs []Job) error {
	data, err := encodeJobs(jobs)
	if err != nil {
		return fmt.Errorf("encoding reminders: %w", err)
	}
	if err := s.docs.Save(ctx, DocumentKey, data); err != nil {
		return fmt.Errorf("saving reminders: %w", err)
	}
	return nil
}

var atLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func (s *Store) parseAt(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range atLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// Add validates d and appends a new job.
func (s *Store) Add(ctx context.Context, d Draft) (Job, error) {
	cronExpr := strings.TrimSpace(d.Cron)
	atRaw := strings.TrimSpace(d.At)

	if (cronExpr == "") == (atRaw == "") {
		return Job{}, &ValidationError{Reason: "exactly one of cron or at must be provided"}
	}

	j := Job{
		ID:        uuid.NewString(),
		UserID:    d.UserID,
		ChatID:    d.ChatID,
		Message:   d.Message,
		CreatedAt: s.now(),
	}
	if cronExpr != "" {
		if _, err := parseCron(cronExpr); err != nil {
			return Job{}, &ValidationError{Field: "cron", Reason: err.Error()}
		}
		j.Cron = cronExpr
	} else {
		at, err := s.parseAt(atRaw)
		if err != nil {
			return Job{}, &ValidationError{Field: "at", Reason: err.Error()}
		}
		j.At = &at
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load(ctx)
	if err != nil {
		return Job{}, err
	}
	jobs = append(jobs, j)
	if err := s.save(ctx, jobs); err != nil {
		return Job{}, err
	}
	return j.clone(), nil
}

// ListByUser returns userID's jobs in insertion order.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Job, error) {
	return s.filter(ctx, func(j Job) bool { return j.UserID == userID })
}

// ListAll returns every job in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]Job, error) {
	return s.filter(ctx, func(Job) bool { return true })
}

// DueAsOf returns the jobs due at now without modifying the store.
func (s *Store) DueAsOf(ctx context.Context, now time.Time) ([]Job, error) {
	return s.filter(ctx, func(j Job) bool { return isDue(j, now, s.loc) })
}

func (s *Store) filter(ctx context.Context, keep func(Job) bool) ([]Job, error) {
	s.mu.Lock()
	jobs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []Job
	for _, j := range jobs {
		if keep(j) {
			out = append(out, j.clone())
		}
	}
	return out, nil
}

// RemoveByID deletes the first job with id. When userID is non-empty the job
// must also belong to that user. It reports whether a job was removed.
func (s *Store) RemoveByID(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	for i, j := range jobs {
		if j.ID != id || (userID != "" && j.UserID != userID) {
			continue
		}
		jobs = append(jobs[:i], jobs[i+1:]...)
		if err := s.save(ctx, jobs); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
