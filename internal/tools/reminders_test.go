package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/rys/internal/reminder"
	"github.com/kalambet/rys/internal/storage"
)

func reminderDispatcher(t *testing.T) (*Dispatcher, *reminder.Store) {
	t.Helper()
	store := reminder.NewStore(storage.NewFileDocuments(t.TempDir()), reminder.WithLocation(time.UTC))
	r := NewRegistry()
	if err := RegisterBuiltins(r, Deps{Reminders: store}); err != nil {
		t.Fatal(err)
	}
	return NewDispatcher(r), store
}

func TestReminderAddListForCaller(t *testing.T) {
	d, store := reminderDispatcher(t)
	ctx := context.Background()
	alice := Caller{UserID: "alice", ChatID: "oc_a"}

	out := d.Invoke(ctx, "reminder_add", map[string]any{"message": "drink water", "cron": "0 9 * * *"}, alice)
	if !strings.HasPrefix(out, "reminder created: id=") {
		t.Fatalf("reminder_add = %q", out)
	}

	jobs, _ := store.ListByUser(ctx, "alice")
	if len(jobs) != 1 || jobs[0].ChatID != "oc_a" || jobs[0].Message != "drink water" {
		t.Fatalf("stored jobs = %+v", jobs)
	}

	list := d.Invoke(ctx, "reminder_list", nil, alice)
	if !strings.Contains(list, jobs[0].ID) || !strings.Contains(list, "cron 0 9 * * *") {
		t.Errorf("reminder_list = %q", list)
	}
	if got := d.Invoke(ctx, "reminder_list", nil, Caller{UserID: "bob"}); got != "no reminders" {
		t.Errorf("bob's reminder_list = %q", got)
	}
}

func TestReminderAddValidationIsReported(t *testing.T) {
	d, store := reminderDispatcher(t)
	ctx := context.Background()

	out := d.Invoke(ctx, "reminder_add", map[string]any{"message": "m", "cron": "0 9 * * *", "at": "2025-01-01T09:00:00Z"}, Caller{UserID: "u"})
	if !strings.HasPrefix(out, "tool error: ") {
		t.Errorf("reminder_add with both = %q", out)
	}
	out = d.Invoke(ctx, "reminder_add", map[string]any{"message": "m"}, Caller{UserID: "u"})
	if !strings.HasPrefix(out, "tool error: ") {
		t.Errorf("reminder_add with neither = %q", out)
	}
	if all, _ := store.ListAll(ctx); len(all) != 0 {
		t.Errorf("invalid reminders persisted: %+v", all)
	}
}

func TestReminderRemoveOtherUsersJob(t *testing.T) {
	d, store := reminderDispatcher(t)
	ctx := context.Background()

	j, err := store.Add(ctx, reminder.Draft{UserID: "alice", ChatID: "c", Message: "m", Cron: "0 9 * * *"})
	if err != nil {
		t.Fatal(err)
	}

	out := d.Invoke(ctx, "reminder_remove", map[string]any{"id": j.ID}, Caller{UserID: "mallory"})
	if !strings.Contains(out, "not found or not yours") {
		t.Errorf("reminder_remove by other user = %q", out)
	}
	if all, _ := store.ListAll(ctx); len(all) != 1 {
		t.Fatalf("store changed: %+v", all)
	}

	out = d.Invoke(ctx, "reminder_remove", map[string]any{"id": j.ID}, Caller{UserID: "alice"})
	if out != "reminder removed: "+j.ID {
		t.Errorf("reminder_remove by owner = %q", out)
	}
}
