package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/rys/internal/reminder"
)

func reminderTools(store *reminder.Store) []Tool {
	return []Tool{
		{
			Name: "reminder_add",
			Description: "Create a reminder delivered to this chat. For a repeating reminder pass cron " +
				"(5 fields: minute hour day-of-month month day-of-week, e.g. \"0 9 * * *\" = every day 09:00). " +
				"For a single reminder pass at as an ISO time (e.g. \"2025-03-10T09:00:00+08:00\"). Provide exactly one of cron or at.",
			Params: []Param{
				{Name: "message", Type: String, Description: "Text to send when the reminder fires", Required: true},
				{Name: "cron", Type: String, Description: "Cron expression for a recurring reminder"},
				{Name: "at", Type: String, Description: "ISO 8601 time for a one-shot reminder"},
			},
			Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
				j, err := store.Add(ctx, reminder.Draft{
					UserID:  c.UserID,
					ChatID:  c.ChatID,
					Message: args.String("message"),
					Cron:    args.String("cron"),
					At:      args.String("at"),
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("reminder created: id=%s, %s", j.ID, j.Schedule()), nil
			},
		},
		{
			Name:        "reminder_list",
			Description: "List the current user's reminders with their ids and schedules.",
			Handler: func(ctx context.Context, c Caller, _ Args) (string, error) {
				jobs, err := store.ListByUser(ctx, c.UserID)
				if err != nil {
					return "", err
				}
				if len(jobs) == 0 {
					return "no reminders", nil
				}
				var b strings.Builder
				for _, j := range jobs {
					fmt.Fprintf(&b, "- %s | %s | %s\n", j.ID, j.Schedule(), j.Message)
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			Name:        "reminder_remove",
			Description: "Delete one of the current user's reminders by id (see reminder_list).",
			Params: []Param{
				{Name: "id", Type: String, Description: "Reminder id", Required: true},
			},
			Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
				id := strings.TrimSpace(args.String("id"))
				ok, err := store.RemoveByID(ctx, id, c.UserID)
				if err != nil {
					return "", err
				}
				if !ok {
					return fmt.Sprintf("reminder %s not found or not yours", id), nil
				}
				return "reminder removed: " + id, nil
			},
		},
	}
}
