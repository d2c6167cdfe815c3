package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kalambet/rys/internal/storage"
)

// MemoryStore is per-user key/value memory.
type MemoryStore interface {
	GetMemory(ctx context.Context, userID, key string) (string, error)
	SetMemory(ctx context.Context, userID, key, value string) error
	AllMemory(ctx context.Context, userID string) (map[string]string, error)
}

func memoryTools(m MemoryStore) []Tool {
	return []Tool{
		{
			Name:        "memory_get",
			Description: "Read the user's persistent memory: preferences, past summaries, habits. Omit key to read everything.",
			Params: []Param{
				{Name: "key", Type: String, Description: "Memory key such as preferences.summary; empty reads all"},
			},
			Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
				key := args.String("key")
				if key == "" {
					all, err := m.AllMemory(ctx, c.UserID)
					if err != nil {
						return "", err
					}
					if len(all) == 0 {
						return "(no memory yet)", nil
					}
					out, err := json.MarshalIndent(all, "", "  ")
					if err != nil {
						return "", err
					}
					return string(out), nil
				}
				v, err := m.GetMemory(ctx, c.UserID, key)
				if errors.Is(err, storage.ErrNotFound) {
					return "(no such key)", nil
				}
				if err != nil {
					return "", err
				}
				return v, nil
			},
		},
		{
			Name:        "memory_set",
			Description: "Save something to the user's persistent memory, such as a preference or a summary.",
			Params: []Param{
				{Name: "key", Type: String, Description: "Memory key", Required: true},
				{Name: "value", Type: String, Description: "Content to store", Required: true},
			},
			Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
				if err := m.SetMemory(ctx, c.UserID, args.String("key"), args.String("value")); err != nil {
					return "", err
				}
				return "memory saved", nil
			},
		},
	}
}
