package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/rys/internal/agent"
	"github.com/kalambet/rys/internal/config"
	"github.com/kalambet/rys/internal/delivery"
	"github.com/kalambet/rys/internal/llm"
	"github.com/kalambet/rys/internal/reminder"
	"github.com/kalambet/rys/internal/storage"
	"github.com/kalambet/rys/internal/tools"
)

// app holds the components shared by the server and the local commands.
type app struct {
	cfg        config.Config
	store      *storage.Store
	reminders  *reminder.Store
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	logger     *slog.Logger
}

func openApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	docs, err := documentsFor(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	reminders := reminder.NewStore(docs,
		reminder.WithLocation(loc),
		reminder.WithStoreLogger(logger),
	)

	if err := os.MkdirAll(cfg.Tools.WorkspaceDir, 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var browser *tools.Browser
	if cfg.Tools.BrowserEnabled {
		browser = tools.NewBrowser(httpClient)
	}

	email := cfg.Email.Resolved()
	registry := tools.NewRegistry()
	err = tools.RegisterBuiltins(registry, tools.Deps{
		Reminders: reminders,
		Memory:    store,
		Shell:     tools.NewShell(cfg.Tools.WorkspaceDir, splitList(cfg.Tools.ShellAllowedPaths)),
		Files:     tools.NewFiles(cfg.Tools.WorkspaceDir),
		Browser:   browser,
		Search:    tools.NewSearch(httpClient, cfg.Search.APIURL, cfg.Search.APIKey, browser),
		Mailer:    tools.NewMailer(email.SMTPHost, email.SMTPPort, email.SMTPUser, email.SMTPPass, email.From),
		Inbox:     tools.NewInbox(email.IMAPHost, email.IMAPPort, email.IMAPUser, email.IMAPPass),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return &app{
		cfg:        cfg,
		store:      store,
		reminders:  reminders,
		registry:   registry,
		dispatcher: tools.NewDispatcher(registry),
		logger:     logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) orchestrator() *agent.Orchestrator {
	model := llm.New(llm.Options{
		APIKey:  a.cfg.LLM.APIKey,
		BaseURL: a.cfg.LLM.BaseURL,
		Model:   a.cfg.LLM.Model,
	})
	return agent.New(model, a.registry, a.dispatcher, agent.Options{
		MaxRounds:       a.cfg.Agent.MaxRounds,
		MaxTokens:       a.cfg.LLM.MaxTokens,
		ToolParallelism: a.cfg.Agent.ToolParallelism,
		Now:             a.now,
		Logger:          a.logger,
	})
}

// now is the wall clock in the reminder zone, the zone the reminder store
// reads cron fields and zone-less times in.
func (a *app) now() time.Time {
	return time.Now().In(a.reminders.Location())
}

// documentsFor picks where the reminder job set is persisted.
func documentsFor(cfg config.Config, store *storage.Store) (reminder.Documents, error) {
	switch cfg.Reminder.Backend {
	case "", "sqlite":
		return store, nil
	case "file":
		return storage.NewFileDocuments(filepath.Join(cfg.Storage.DataDir, "cron")), nil
	default:
		return nil, fmt.Errorf("unknown reminder.backend %q", cfg.Reminder.Backend)
	}
}

func newSender(cfg config.Config) (delivery.Sender, error) {
	switch cfg.Delivery.Platform {
	case "lark":
		return delivery.NewLarkClient(cfg.Lark.AppID, cfg.Lark.AppSecret, cfg.Lark.BaseURL, nil), nil
	case "telegram":
		return delivery.NewTelegramClient(cfg.Telegram.BotToken)
	default:
		return nil, fmt.Errorf("unknown delivery.platform %q", cfg.Delivery.Platform)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
