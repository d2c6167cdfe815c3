package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/rys/internal/api"
	"github.com/kalambet/rys/internal/config"
	"github.com/kalambet/rys/internal/pipeline"
	"github.com/kalambet/rys/internal/reminder"
	"github.com/kalambet/rys/internal/storage"
	"github.com/kalambet/rys/internal/tools"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one message through the assistant locally",
	Long: `Run one message through the assistant without the server.

Examples:
  rys ask "what's on my list today?"
  rys ask --user ou_123 --chat oc_456 --send "remind me at 9 to call mum"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		chatID, _ := cmd.Flags().GetString("chat")
		send, _ := cmd.Flags().GetBool("send")
		message := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.LLM.APIKey == "" {
			return errors.New("missing LLM API key; set RYS_LLM_API_KEY")
		}
		a, err := openApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if send {
			if chatID == "" {
				return errors.New("--chat is required with --send")
			}
			sender, err := newSender(cfg)
			if err != nil {
				return err
			}
			h := pipeline.NewHandler(a.orchestrator(), sender, a.store, a.logger)
			reply, err := h.Handle(ctx, pipeline.Event{UserID: userID, ChatID: chatID, Message: message})
			if err != nil {
				return err
			}
			fmt.Println(reply.Text)
			printSuccess("Delivered to %s (%s, %d rounds)", chatID, reply.Outcome, reply.Rounds)
			return nil
		}

		res, err := a.orchestrator().Run(ctx, userID, chatID, message)
		if err != nil {
			return errors.New(pipeline.UserMessage(err))
		}
		fmt.Println(res.Text)
		printStatus("Rounds", "%d (%s)", res.Rounds, res.Outcome)
		return nil
	},
}

func init() {
	askCmd.Flags().String("user", "cli", "user id the message is sent as")
	askCmd.Flags().String("chat", "", "chat id used for reminders and --send")
	askCmd.Flags().Bool("send", false, "deliver the reply to --chat")
}

// --- reminders ---

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Manage scheduled reminders",
}

// reminderJSON mirrors the server's reminder representation.
type reminderJSON struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ChatID    string     `json:"chatId"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	Cron      string     `json:"cron,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	Kind      string     `json:"kind"`
}

func (r reminderJSON) schedule() string {
	if r.Cron != "" {
		return "cron " + r.Cron
	}
	if r.At != nil {
		return "at " + r.At.Format(time.RFC3339)
	}
	return "-"
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listReminders(cmd.Context(), client, os.Stdout, userID)
	},
}

func listReminders(ctx context.Context, client *apiClient, w io.Writer, userID string) error {
	path := "/v1/reminders"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var jobs []reminderJSON
	if err := decodeJSON(resp, &jobs); err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no reminders")
		return nil
	}
	for _, j := range jobs {
		fmt.Fprintf(w, "%s  %-28s  %s  (user %s, chat %s)\n",
			colorize(colorCyan, j.ID), j.schedule(), j.Message, j.UserID, j.ChatID)
	}
	return nil
}

var remindersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a reminder",
	Long: `Schedule a reminder. Exactly one of --cron and --at is required.

Examples:
  rys reminders add --chat oc_456 --message "stand-up" --cron "0 9 * * 1-5"
  rys reminders add --chat oc_456 --message "call mum" --at 2025-03-11T18:00:00+08:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]string{}
		for _, f := range []string{"user", "chat", "message", "cron", "at"} {
			v, _ := cmd.Flags().GetString(f)
			req[f] = v
		}
		if req["chat"] == "" || req["message"] == "" {
			return errors.New("--chat and --message are required")
		}
		if (req["cron"] == "") == (req["at"] == "") {
			return errors.New("exactly one of --cron and --at is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		job, err := addReminder(cmd.Context(), client, req)
		if err != nil {
			return err
		}
		printSuccess("Scheduled %s (%s)", job.ID, job.schedule())
		return nil
	},
}

func addReminder(ctx context.Context, client *apiClient, req map[string]string) (reminderJSON, error) {
	resp, err := client.post(ctx, "/v1/reminders", map[string]string{
		"userId":  req["user"],
		"chatId":  req["chat"],
		"message": req["message"],
		"cron":    req["cron"],
		"at":      req["at"],
	})
	if err != nil {
		return reminderJSON{}, err
	}
	var job reminderJSON
	err = decodeJSON(resp, &job)
	return job, err
}

var remindersRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/v1/reminders/" + url.PathEscape(args[0])
		if userID != "" {
			path += "?user_id=" + url.QueryEscape(userID)
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Removed %s", args[0])
		return nil
	},
}

var remindersTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Deliver due reminders once, without the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// The server's scheduler tracks which recurring jobs fired this
		// minute; a second scheduler would not see that and deliver again.
		if pid, ok := serverPID(cfg.Storage.DataDir); ok {
			return fmt.Errorf("rys server is running (PID %d) and delivers reminders itself; stop it before ticking locally", pid)
		}
		a, err := openApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		sender, err := newSender(cfg)
		if err != nil {
			return err
		}
		fired, err := reminder.NewScheduler(a.reminders, sender).Tick(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		for _, j := range fired {
			printStatus("Fired", "%s %s", j.ID, j.Message)
		}
		printSuccess("%d reminder(s) due", len(fired))
		return nil
	},
}

func init() {
	remindersListCmd.Flags().String("user", "", "only show this user's reminders")
	remindersAddCmd.Flags().String("user", "cli", "owner user id")
	remindersAddCmd.Flags().String("chat", "", "chat to deliver to")
	remindersAddCmd.Flags().String("message", "", "reminder text")
	remindersAddCmd.Flags().String("cron", "", "5-field cron expression for recurring reminders")
	remindersAddCmd.Flags().String("at", "", "fire time for a one-shot reminder (RFC 3339 or 2006-01-02 15:04)")
	remindersRemoveCmd.Flags().String("user", "", "only remove if owned by this user")

	remindersCmd.AddCommand(remindersListCmd)
	remindersCmd.AddCommand(remindersAddCmd)
	remindersCmd.AddCommand(remindersRemoveCmd)
	remindersCmd.AddCommand(remindersTickCmd)
}

// --- memory ---

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or edit per-user memory",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show a user's memory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()
		return showMemory(cmd.Context(), store, os.Stdout, userID, args)
	},
}

func showMemory(ctx context.Context, store *storage.Store, w io.Writer, userID string, args []string) error {
	if len(args) == 1 {
		v, err := store.GetMemory(ctx, userID, args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no memory %q for user %s", args[0], userID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, v)
		return nil
	}

	all, err := store.AllMemory(ctx, userID)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(w, "(no memory yet)")
		return nil
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k), all[k])
	}
	return nil
}

var memorySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a memory value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()
		if err := store.SetMemory(cmd.Context(), userID, args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s for %s", args[0], args[1], userID)
		return nil
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a memory value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()
		if err := store.DeleteMemory(cmd.Context(), userID, args[0]); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no memory %q for user %s", args[0], userID)
			}
			return err
		}
		printSuccess("Deleted %s for %s", args[0], userID)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{memoryShowCmd, memorySetCmd, memoryDeleteCmd} {
		c.Flags().String("user", "cli", "user id")
		memoryCmd.AddCommand(c)
	}
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recently handled messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listRuns(cmd.Context(), client, os.Stdout, userID, limit)
	},
}

type runJSON struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Outcome   string    `json:"outcome"`
	Rounds    int       `json:"rounds"`
	Error     string    `json:"error,omitempty"`
}

func listRuns(ctx context.Context, client *apiClient, w io.Writer, userID string, limit int) error {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if userID != "" {
		q.Set("user_id", userID)
	}
	resp, err := client.get(ctx, "/v1/runs?"+q.Encode())
	if err != nil {
		return err
	}
	var runs []runJSON
	if err := decodeJSON(resp, &runs); err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return nil
	}
	for _, r := range runs {
		outcome := r.Outcome
		if r.Outcome == pipeline.OutcomeFailed {
			outcome = colorize(colorRed, outcome)
		}
		fmt.Fprintf(w, "%s  %-9s %2d  %-12s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), outcome, r.Rounds, r.UserID, preview(r.Message, 60))
	}
	return nil
}

func preview(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

func init() {
	runsCmd.Flags().String("user", "", "only show this user's runs")
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
}

// --- tools ---

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := openApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		printTools(os.Stdout, a.registry)
		return nil
	},
}

func printTools(w io.Writer, r *tools.Registry) {
	for _, t := range r.Tools() {
		var params []string
		for _, p := range t.Params {
			s := p.Name + ":" + p.Type.String()
			if p.Required {
				s += "*"
			}
			params = append(params, s)
		}
		fmt.Fprintf(w, "%s(%s)\n    %s\n", colorize(colorBold, t.Name), strings.Join(params, ", "), t.Description)
	}
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant's tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		chatID, _ := cmd.Flags().GetString("chat")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// stdout carries the protocol.
		logger := setupLogging(cfg.Log.Level)
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Registry:  a.registry,
			Invoker:   a.dispatcher,
			Caller:    tools.Caller{UserID: userID, ChatID: chatID},
			Reminders: a.reminders,
			Runs:      a.store,
		})
		logger.Info("MCP server started (stdio transport)", "user_id", userID)
		err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().String("user", "mcp", "user id tool calls run as")
	mcpCmd.Flags().String("chat", "", "chat id used for reminders created over MCP")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
