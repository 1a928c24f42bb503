package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"chatbook/internal/models"
	"chatbook/internal/schedule"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Mail       MailConfig       `yaml:"mail"`
	NATS       NATSConfig       `yaml:"nats"`
	Drafts     DraftsConfig     `yaml:"drafts"`
	Bots       []models.Tenant  `yaml:"bots"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey grants a caller access. An empty Bots list allows every bot.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Bots        []string `yaml:"bots"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// PerBotRequests caps requests per bot per PerBotWindow via the draft store.
	PerBotRequests int           `yaml:"per_bot_requests"`
	PerBotWindow   time.Duration `yaml:"per_bot_window"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string        `yaml:"credentials_file"`
	CalendarTimeout       time.Duration `yaml:"calendar_timeout"`
}

type SheetsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SpreadsheetID string `yaml:"spreadsheet_id"`
}

type MailConfig struct {
	Provider   string           `yaml:"provider"`
	FromName   string           `yaml:"from_name"`
	FromEmail  string           `yaml:"from_email"`
	Timeout    time.Duration    `yaml:"timeout"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	MailerSend MailerSendConfig `yaml:"mailersend"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MailerSendConfig struct {
	APIKey string `yaml:"api_key"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type DraftsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

const (
	MailProviderNone       = "none"
	MailProviderSMTP       = "smtp"
	MailProviderMailerSend = "mailersend"
)

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Mail.Provider {
	case MailProviderNone:
	case MailProviderSMTP:
		if c.Mail.SMTP.Host == "" {
			return errors.New("mail.smtp.host is required for smtp provider")
		}
	case MailProviderMailerSend:
		if c.Mail.MailerSend.APIKey == "" {
			return errors.New("mail.mailersend.api_key is required for mailersend provider")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	if c.Mail.Provider != MailProviderNone && c.Mail.FromEmail == "" {
		return errors.New("mail.from_email is required")
	}

	if c.Sheets.Enabled && c.Sheets.SpreadsheetID == "" {
		return errors.New("sheets.spreadsheet_id is required when sheets are enabled")
	}

	return ValidateBots(c.Bots)
}

// ValidateBots checks tenant configuration. Schedules and timezones are only
// checked here; the tenant registry compiles them again per lookup.
func ValidateBots(bots []models.Tenant) error {
	botIDs := make(map[string]bool)
	for _, bot := range bots {
		if bot.ID == "" {
			return fmt.Errorf("bot '%s' has empty id", bot.Name)
		}
		if botIDs[bot.ID] {
			return fmt.Errorf("duplicate bot id found: %s", bot.ID)
		}
		botIDs[bot.ID] = true

		if bot.Policy.Timezone != "" {
			if _, err := time.LoadLocation(bot.Policy.Timezone); err != nil {
				return fmt.Errorf("bot %s: invalid timezone %q: %w", bot.ID, bot.Policy.Timezone, err)
			}
		}
		if bot.Policy.MaxAdvanceDays != nil && *bot.Policy.MaxAdvanceDays <= 0 {
			return fmt.Errorf("bot %s: max_advance_days must be positive", bot.ID)
		}
		if bot.Policy.MinLeadHours != nil && *bot.Policy.MinLeadHours < 0 {
			return fmt.Errorf("bot %s: min_lead_hours must not be negative", bot.ID)
		}

		serviceKeys := make(map[string]bool)
		for _, svc := range bot.Services {
			if svc.Key == "" || svc.Name == "" {
				return fmt.Errorf("bot %s: service key and name are required", bot.ID)
			}
			if serviceKeys[svc.Key] {
				return fmt.Errorf("bot %s: duplicate service key: %s", bot.ID, svc.Key)
			}
			serviceKeys[svc.Key] = true

			if svc.CalendarID == "" {
				return fmt.Errorf("bot %s: service %s has no calendar_id", bot.ID, svc.Key)
			}
			if svc.DurationMinutes <= 0 {
				return fmt.Errorf("bot %s: service %s duration must be positive", bot.ID, svc.Key)
			}
			if svc.Capacity < 0 {
				return fmt.Errorf("bot %s: service %s capacity must not be negative", bot.ID, svc.Key)
			}
			if _, err := schedule.Compile(svc.Schedule); err != nil {
				return fmt.Errorf("bot %s: service %s schedule: %w", bot.ID, svc.Key, err)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.PerBotRequests == 0 {
		c.API.RateLimit.PerBotRequests = models.RateLimitRequests
	}
	if c.API.RateLimit.PerBotWindow == 0 {
		c.API.RateLimit.PerBotWindow = models.RateLimitWindow * time.Second
	}

	if c.Google.CalendarTimeout == 0 {
		c.Google.CalendarTimeout = 10 * time.Second
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = MailProviderNone
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 10 * time.Second
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "chatbook"
	}
	if c.Drafts.TTL == 0 {
		c.Drafts.TTL = models.DefaultDraftTTL * time.Second
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	for i := range c.Bots {
		if c.Bots[i].Policy.Timezone == "" {
			c.Bots[i].Policy.Timezone = "UTC"
		}
		if c.Bots[i].Name == "" {
			c.Bots[i].Name = c.Bots[i].ID
		}
	}
}
