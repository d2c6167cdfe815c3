package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	legacy  []string // older env names still honoured, checked after env
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "RYS_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "RYS_SERVER_PORT", legacy: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "RYS_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RYS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "reminder.backend", typ: kString, env: "RYS_REMINDER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Reminder.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminder.Backend },
	},
	{
		key: "reminder.poll_interval", typ: kString, env: "RYS_REMINDER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reminder.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminder.PollInterval },
	},
	{
		key: "reminder.timezone", typ: kString, env: "RYS_REMINDER_TIMEZONE", legacy: []string{"TZ"},
		apply:   func(cfg *Config, v any) { cfg.Reminder.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminder.Timezone },
	},
	{
		key: "llm.api_key", typ: kString, env: "RYS_LLM_API_KEY", legacy: []string{"DASHSCOPE_API_KEY", "OPENAI_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.base_url", typ: kString, env: "RYS_LLM_BASE_URL", legacy: []string{"DASHSCOPE_BASE_URL", "OPENAI_BASE_URL"},
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "RYS_LLM_MODEL", legacy: []string{"DASHSCOPE_MODEL", "OPENAI_MODEL"},
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.max_tokens", typ: kInt, env: "RYS_LLM_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokens },
	},
	{
		key: "agent.max_rounds", typ: kInt, env: "RYS_AGENT_MAX_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxRounds },
	},
	{
		key: "agent.tool_parallelism", typ: kInt, env: "RYS_AGENT_TOOL_PARALLELISM",
		apply:   func(cfg *Config, v any) { cfg.Agent.ToolParallelism = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.ToolParallelism },
	},
	{
		key: "delivery.platform", typ: kString, env: "RYS_DELIVERY_PLATFORM",
		apply:   func(cfg *Config, v any) { cfg.Delivery.Platform = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.Platform },
	},
	{
		key: "lark.app_id", typ: kString, env: "RYS_LARK_APP_ID", legacy: []string{"LARK_APP_ID"},
		apply:   func(cfg *Config, v any) { cfg.Lark.AppID = v.(string) },
		extract: func(cfg Config) any { return cfg.Lark.AppID },
	},
	{
		key: "lark.app_secret", typ: kString, env: "RYS_LARK_APP_SECRET", legacy: []string{"LARK_APP_SECRET"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Lark.AppSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Lark.AppSecret },
	},
	{
		key: "lark.base_url", typ: kString, env: "RYS_LARK_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Lark.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Lark.BaseURL },
	},
	{
		key: "telegram.bot_token", typ: kString, env: "RYS_TELEGRAM_BOT_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Telegram.BotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.BotToken },
	},
	{
		key: "tools.workspace_dir", typ: kString, env: "RYS_TOOLS_WORKSPACE_DIR", legacy: []string{"WORKSPACE_DIR"},
		apply:   func(cfg *Config, v any) { cfg.Tools.WorkspaceDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.WorkspaceDir },
	},
	{
		key: "tools.shell_allowed_paths", typ: kString, env: "RYS_TOOLS_SHELL_ALLOWED_PATHS", legacy: []string{"SHELL_ALLOWED_PATHS"},
		apply:   func(cfg *Config, v any) { cfg.Tools.ShellAllowedPaths = v.(string) },
		extract: func(cfg Config) any { return cfg.Tools.ShellAllowedPaths },
	},
	{
		key: "tools.browser_enabled", typ: kBool, env: "RYS_TOOLS_BROWSER_ENABLED", legacy: []string{"BROWSER_ENABLED"},
		apply:   func(cfg *Config, v any) { cfg.Tools.BrowserEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Tools.BrowserEnabled },
	},
	{
		key: "search.api_url", typ: kString, env: "RYS_SEARCH_API_URL", legacy: []string{"SEARCH_API_URL"},
		apply:   func(cfg *Config, v any) { cfg.Search.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIURL },
	},
	{
		key: "search.api_key", typ: kString, env: "RYS_SEARCH_API_KEY", legacy: []string{"SEARCH_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "email.smtp_host", typ: kString, env: "RYS_EMAIL_SMTP_HOST", legacy: []string{"EMAIL_SMTP_HOST"},
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPHost },
	},
	{
		key: "email.smtp_port", typ: kInt, env: "RYS_EMAIL_SMTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.SMTPPort },
	},
	{
		key: "email.smtp_user", typ: kString, env: "RYS_EMAIL_SMTP_USER", legacy: []string{"EMAIL_SMTP_USER"},
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPUser = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPUser },
	},
	{
		key: "email.smtp_pass", typ: kString, env: "RYS_EMAIL_SMTP_PASS", legacy: []string{"EMAIL_SMTP_PASS"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Email.SMTPPass = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.SMTPPass },
	},
	{
		key: "email.from", typ: kString, env: "RYS_EMAIL_FROM",
		apply:   func(cfg *Config, v any) { cfg.Email.From = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.From },
	},
	{
		key: "email.imap_host", typ: kString, env: "RYS_EMAIL_IMAP_HOST", legacy: []string{"EMAIL_IMAP_HOST"},
		apply:   func(cfg *Config, v any) { cfg.Email.IMAPHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.IMAPHost },
	},
	{
		key: "email.imap_port", typ: kInt, env: "RYS_EMAIL_IMAP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Email.IMAPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.IMAPPort },
	},
	{
		key: "email.imap_user", typ: kString, env: "RYS_EMAIL_IMAP_USER", legacy: []string{"EMAIL_IMAP_USER"},
		apply:   func(cfg *Config, v any) { cfg.Email.IMAPUser = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.IMAPUser },
	},
	{
		key: "email.imap_pass", typ: kString, env: "RYS_EMAIL_IMAP_PASS", legacy: []string{"EMAIL_IMAP_PASS"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Email.IMAPPass = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.IMAPPass },
	},
	{
		key: "email.gmail_user", typ: kString, env: "RYS_EMAIL_GMAIL_USER", legacy: []string{"GMAIL_USER"},
		apply:   func(cfg *Config, v any) { cfg.Email.GmailUser = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.GmailUser },
	},
	{
		key: "email.gmail_app_password", typ: kString, env: "RYS_EMAIL_GMAIL_APP_PASSWORD", legacy: []string{"GMAIL_APP_PASSWORD"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Email.GmailAppPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.GmailAppPassword },
	},
	{
		key: "log.level", typ: kString, env: "RYS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

// lookupEnv returns the first non-empty value among the primary and
// legacy environment variables.
func lookupEnv(s keySpec) (string, string) {
	for _, name := range append([]string{s.env}, s.legacy...) {
		if name == "" {
			continue
		}
		if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
			return name, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}

// applySecrets fills secrets that are still empty from the secrets file.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get("rys", s.key); err == nil && v != "" {
			s.apply(cfg, strings.TrimSpace(v))
		}
	}
}
