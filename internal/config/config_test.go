package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if v, ok := m.values[account]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		for _, l := range s.legacy {
			t.Setenv(l, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMapBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Agent.MaxRounds != 10 {
		t.Errorf("Agent.MaxRounds = %d, want 10", cfg.Agent.MaxRounds)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("LLM.MaxTokens = %d, want 4096", cfg.LLM.MaxTokens)
	}
	if cfg.Reminder.PollInterval != "60s" {
		t.Errorf("Reminder.PollInterval = %q, want 60s", cfg.Reminder.PollInterval)
	}
	if cfg.Reminder.Backend != "sqlite" {
		t.Errorf("Reminder.Backend = %q, want sqlite", cfg.Reminder.Backend)
	}
	want := filepath.Join(cfg.Storage.DataDir, "workspace")
	if cfg.Tools.WorkspaceDir != want {
		t.Errorf("Tools.WorkspaceDir = %q, want %q", cfg.Tools.WorkspaceDir, want)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["llm.model"] = "qwen-max"
	b.ints["agent.max_rounds"] = 4
	b.strs["tools.browser_enabled"] = "false"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "qwen-max" {
		t.Errorf("LLM.Model = %q, want qwen-max", cfg.LLM.Model)
	}
	if cfg.Agent.MaxRounds != 4 {
		t.Errorf("Agent.MaxRounds = %d, want 4", cfg.Agent.MaxRounds)
	}
	if cfg.Tools.BrowserEnabled {
		t.Error("Tools.BrowserEnabled = true, want false")
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["llm.model"] = "from-file"
	t.Setenv("RYS_LLM_MODEL", "from-env")
	t.Setenv("RYS_SERVER_PORT", "8080")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("LLM.Model = %q, want from-env", cfg.LLM.Model)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DASHSCOPE_API_KEY", "ds-key")
	t.Setenv("LARK_APP_ID", "cli_123")

	cfg, err := loadWith(newMapBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "ds-key" {
		t.Errorf("LLM.APIKey = %q, want ds-key", cfg.LLM.APIKey)
	}
	if cfg.Lark.AppID != "cli_123" {
		t.Errorf("Lark.AppID = %q, want cli_123", cfg.Lark.AppID)
	}

	// The primary name wins over legacy names.
	t.Setenv("RYS_LLM_API_KEY", "rys-key")
	cfg, _ = loadWith(newMapBackend(), mockKeychain{})
	if cfg.LLM.APIKey != "rys-key" {
		t.Errorf("LLM.APIKey = %q, want rys-key", cfg.LLM.APIKey)
	}
}

func TestInvalidIntEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("RYS_AGENT_MAX_ROUNDS", "lots")

	cfg, err := loadWith(newMapBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.MaxRounds != 10 {
		t.Errorf("Agent.MaxRounds = %d, want 10", cfg.Agent.MaxRounds)
	}
}

func TestSecretsNotReadFromBackend(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["llm.api_key"] = "leaked"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

func TestSecretsFromKeychain(t *testing.T) {
	clearEnv(t)
	kc := mockKeychain{values: map[string]string{
		"llm.api_key":      " kc-key\n",
		"lark.app_secret": "kc-secret",
	}}
	t.Setenv("RYS_LARK_APP_SECRET", "env-secret")

	cfg, err := loadWith(newMapBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "kc-key" {
		t.Errorf("LLM.APIKey = %q, want kc-key", cfg.LLM.APIKey)
	}
	if cfg.Lark.AppSecret != "env-secret" {
		t.Errorf("Lark.AppSecret = %q, want env-secret (env beats keychain)", cfg.Lark.AppSecret)
	}
}

func TestValidate(t *testing.T) {
	base := defaults()
	base.LLM.APIKey = "k"
	base.Lark.AppID = "id"
	base.Lark.AppSecret = "secret"

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }},
		{"missing lark secret", func(c *Config) { c.Lark.AppSecret = "" }},
		{"telegram without token", func(c *Config) { c.Delivery.Platform = "telegram" }},
		{"unknown platform", func(c *Config) { c.Delivery.Platform = "irc" }},
		{"unknown backend", func(c *Config) { c.Reminder.Backend = "redis" }},
		{"bad interval", func(c *Config) { c.Reminder.PollInterval = "soon" }},
		{"zero interval", func(c *Config) { c.Reminder.PollInterval = "0s" }},
		{"bad timezone", func(c *Config) { c.Reminder.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPollIntervalAndLocation(t *testing.T) {
	c := defaults()
	c.Reminder.PollInterval = "30s"
	c.Reminder.Timezone = "UTC"

	d, err := c.PollInterval()
	if err != nil || d != 30*time.Second {
		t.Errorf("PollInterval() = %v, %v; want 30s", d, err)
	}
	loc, err := c.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v; want UTC", loc, err)
	}
}

func TestGmailShortcut(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMAIL_IMAP_HOST", "imap.example.com")
	t.Setenv("GMAIL_USER", "me@gmail.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-pw")

	cfg, err := loadWith(newMapBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Email.IMAPHost != "imap.example.com" {
		t.Errorf("IMAPHost = %q, want raw value before Resolved", cfg.Email.IMAPHost)
	}

	e := cfg.Email.Resolved()
	if e.IMAPHost != "imap.gmail.com" || e.IMAPUser != "me@gmail.com" || e.IMAPPass != "app-pw" {
		t.Errorf("IMAP = %q %q %q", e.IMAPHost, e.IMAPUser, e.IMAPPass)
	}
	if e.SMTPHost != "smtp.gmail.com" || e.SMTPUser != "me@gmail.com" || e.SMTPPass != "app-pw" {
		t.Errorf("SMTP = %q %q %q", e.SMTPHost, e.SMTPUser, e.SMTPPass)
	}
	if e.From != "me@gmail.com" || e.IMAPPort != 993 {
		t.Errorf("From = %q, IMAPPort = %d", e.From, e.IMAPPort)
	}

	// Without the app password the explicit accounts are kept.
	cfg.Email.GmailAppPassword = ""
	if got := cfg.Email.Resolved().IMAPHost; got != "imap.example.com" {
		t.Errorf("IMAPHost = %q, want imap.example.com", got)
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()
	var secretKey, secretVal string
	setSecret := func(service, account, value string) error {
		secretKey, secretVal = account, value
		return nil
	}

	if err := setKey(b, setSecret, "agent.max_rounds", "5"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}
	if b.ints["agent.max_rounds"] != 5 {
		t.Errorf("agent.max_rounds = %d, want 5", b.ints["agent.max_rounds"])
	}
	if err := setKey(b, setSecret, "agent.max_rounds", "five"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKey(b, setSecret, "tools.browser_enabled", "0"); err != nil {
		t.Fatalf("setKey bool: %v", err)
	}
	if b.strs["tools.browser_enabled"] != "false" {
		t.Errorf("tools.browser_enabled = %q, want false", b.strs["tools.browser_enabled"])
	}
	if err := setKey(b, setSecret, "llm.api_key", "sk-1"); err != nil {
		t.Fatalf("setKey secret: %v", err)
	}
	if secretKey != "llm.api_key" || secretVal != "sk-1" {
		t.Errorf("secret stored as %q=%q", secretKey, secretVal)
	}
	if _, ok := b.strs["llm.api_key"]; ok {
		t.Error("secret must not be written to the config backend")
	}
	if err := setKey(b, setSecret, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	c := defaults()
	c.LLM.APIKey = "sk-secret"
	for _, ki := range ShowAll(c) {
		if ki.Key == "llm.api_key" && ki.Value != "********" {
			t.Errorf("llm.api_key shown as %q", ki.Value)
		}
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rys", "config.json")
	b := newFileBackend(path)
	if err := b.SetString("llm.model", "qwen-turbo"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetInt("server.port", 9000); err != nil {
		t.Fatal(err)
	}

	reloaded := newFileBackend(path)
	if v, ok, _ := reloaded.GetString("llm.model"); !ok || v != "qwen-turbo" {
		t.Errorf("llm.model = %q, %v", v, ok)
	}
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 9000 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}
}
