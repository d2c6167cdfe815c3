package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Reminder ReminderConfig
	LLM      LLMConfig
	Agent    AgentConfig
	Delivery DeliveryConfig
	Lark     LarkConfig
	Telegram TelegramConfig
	Tools    ToolsConfig
	Search   SearchConfig
	Email    EmailConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type ReminderConfig struct {
	Backend      string // "sqlite" or "file"
	PollInterval string
	Timezone     string
}

type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

type AgentConfig struct {
	MaxRounds       int
	ToolParallelism int
}

type DeliveryConfig struct {
	Platform string // "lark" or "telegram"
}

type LarkConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

type TelegramConfig struct {
	BotToken string
}

type ToolsConfig struct {
	WorkspaceDir      string
	ShellAllowedPaths string // comma-separated
	BrowserEnabled    bool
}

type SearchConfig struct {
	APIURL string
	APIKey string
}

type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string

	IMAPHost string
	IMAPPort int
	IMAPUser string
	IMAPPass string

	// Gmail shortcut: when both are set they replace the IMAP and SMTP
	// accounts above.
	GmailUser        string
	GmailAppPassword string
}

// Resolved returns the mail settings with the Gmail shortcut applied.
func (e EmailConfig) Resolved() EmailConfig {
	if e.GmailUser == "" || e.GmailAppPassword == "" {
		return e
	}
	e.IMAPHost, e.IMAPUser, e.IMAPPass = "imap.gmail.com", e.GmailUser, e.GmailAppPassword
	e.SMTPHost, e.SMTPUser, e.SMTPPass = "smtp.gmail.com", e.GmailUser, e.GmailAppPassword
	if e.From == "" {
		e.From = e.GmailUser
	}
	return e
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Reminder: ReminderConfig{
			Backend:      "sqlite",
			PollInterval: "60s",
			Timezone:     "Local",
		},
		LLM: LLMConfig{
			Model:     "qwen-plus",
			MaxTokens: 4096,
		},
		Agent: AgentConfig{
			MaxRounds:       10,
			ToolParallelism: 1,
		},
		Delivery: DeliveryConfig{
			Platform: "lark",
		},
		Lark: LarkConfig{
			BaseURL: "https://open.feishu.cn",
		},
		Tools: ToolsConfig{
			BrowserEnabled: true,
		},
		Email: EmailConfig{
			SMTPPort: 587,
			IMAPPort: 993,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory, RYS_* environment variables and the secrets file.
//
// The file backend lives at $XDG_CONFIG_HOME/rys/config.json. Secrets are
// never read from it; they come from the environment or from
// $XDG_DATA_HOME/rys/secrets.json.
func Load() (Config, error) {
	// A missing .env is the normal case in production.
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), secretsReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.Tools.WorkspaceDir == "" {
		cfg.Tools.WorkspaceDir = filepath.Join(cfg.Storage.DataDir, "workspace")
	}

	return cfg, nil
}

// Validate reports missing settings required to run the server.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: LLM API key. " +
			"Set it via environment variable RYS_LLM_API_KEY (or DASHSCOPE_API_KEY / OPENAI_API_KEY)")
	}
	switch c.Delivery.Platform {
	case "lark":
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("missing required config: lark.app_id and RYS_LARK_APP_SECRET")
		}
	case "telegram":
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("missing required config: RYS_TELEGRAM_BOT_TOKEN")
		}
	default:
		return fmt.Errorf("unknown delivery.platform %q (want lark or telegram)", c.Delivery.Platform)
	}
	switch c.Reminder.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("unknown reminder.backend %q (want sqlite or file)", c.Reminder.Backend)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// PollInterval parses reminder.poll_interval.
func (c Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Reminder.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid reminder.poll_interval %q: %w", c.Reminder.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid reminder.poll_interval %q: must be positive", c.Reminder.PollInterval)
	}
	return d, nil
}

// Location resolves reminder.timezone. Cron expressions and zone-less
// one-shot times are interpreted in it.
func (c Config) Location() (*time.Location, error) {
	if c.Reminder.Timezone == "" || c.Reminder.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder.timezone %q: %w", c.Reminder.Timezone, err)
	}
	return loc, nil
}

// secretsReader reads secrets from the local secrets file.
type secretsReader struct{}

func (secretsReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
