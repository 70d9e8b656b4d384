package config

type Config struct {
	Telegram  TelegramConfig `json:"telegram"`
	Supabase  SupabaseConfig `json:"supabase"`
	Logging   LoggingConfig  `json:"logging"`
	Reminders ReminderConfig `json:"reminders"`
}

type TelegramConfig struct {
	// Token is usually supplied via TELEGRAM_TOKEN rather than the file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SupabaseConfig struct {
	// URL and ServiceKey are usually supplied via SUPABASE_URL and
	// SUPABASE_SERVICE_KEY rather than the file. The service-role key is
	// required because the bot reads rows on behalf of arbitrary chat users.
	URL        string `json:"url,omitempty"`
	ServiceKey string `json:"service_key,omitempty"`
	// RequestTimeout is a Go duration string.
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ReminderConfig controls the upcoming-task reminder sweep.
type ReminderConfig struct {
	// Enabled is a pointer so "omitted" defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
	// LeadMinutes is how far ahead of a task's scheduled time the reminder
	// fires. Defaults to 30.
	LeadMinutes int `json:"lead_minutes,omitempty"`
	// RatePerSec caps outgoing reminder messages. Defaults to 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

func (c *ReminderConfig) EnabledOrDefault() bool {
	if c == nil || c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

func (c *LoggingConfig) ConsoleOrDefault() bool {
	if c == nil || c.Console == nil {
		return true
	}
	return *c.Console
}
