package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the invoice-agent core. It is loaded
// once at process start and treated as immutable afterward; every component
// constructor takes the sub-config it needs rather than reaching for a
// process-wide singleton.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Mailbox      MailboxConfig      `yaml:"mailbox"`
	Graph        GraphConfig        `yaml:"graph"`
	Chat         ChatConfig         `yaml:"chat"`
	LLM          LLMConfig          `yaml:"llm"`
	Storage      StorageConfig      `yaml:"storage"`
	Queue        QueueConfig        `yaml:"queue"`
	Vendor       VendorConfig       `yaml:"vendor"`
	Polling      PollingConfig      `yaml:"polling"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Redis        RedisConfig        `yaml:"redis"`
}

// ServerConfig holds the webhook receiver's HTTP listener settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost allows a container runtime to force all-interfaces binding
// without touching config.yaml.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// MailboxConfig holds the ingest mailbox and outbound routing addresses
// from the environment.
type MailboxConfig struct {
	IngestMailbox    string   `yaml:"ingest_mailbox"`
	APEmailAddress   string   `yaml:"ap_email_address"`
	AllowedAPEmails  []string `yaml:"allowed_ap_emails"`
	ResellerMailbox  string   `yaml:"reseller_mailbox"`
	UnknownVendorBox string   `yaml:"unknown_vendor_mailbox"`
	FunctionAppURL   string   `yaml:"function_app_url"`
}

// IsIngestMailbox reports whether addr is the configured ingest mailbox,
// case-insensitively — the loop-prevention check every outbound send and
// every inbound sender validation both run against.
func (c MailboxConfig) IsIngestMailbox(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), strings.TrimSpace(c.IngestMailbox))
}

// IsAllowedAPRecipient reports whether addr is the default AP address or on
// the optional allowlist.
func (c MailboxConfig) IsAllowedAPRecipient(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == strings.ToLower(strings.TrimSpace(c.APEmailAddress)) {
		return true
	}
	for _, a := range c.AllowedAPEmails {
		if strings.ToLower(strings.TrimSpace(a)) == addr {
			return true
		}
	}
	return false
}

// GraphConfig holds the mail/graph provider connection settings.
type GraphConfig struct {
	BaseURL         string `yaml:"base_url"`
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	WebhookURL      string `yaml:"webhook_url"`
	ClientState     string `yaml:"client_state"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	SubscriptionTTL int    `yaml:"subscription_ttl_hours"` // provider max, default ~70h for mail
}

// Timeout returns the configured provider call timeout.
func (c GraphConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxSubscriptionLifetime returns the provider's maximum subscription
// lifetime.
func (c GraphConfig) MaxSubscriptionLifetime() time.Duration {
	hours := c.SubscriptionTTL
	if hours <= 0 {
		hours = 70
	}
	return time.Duration(hours) * time.Hour
}

// ChatConfig holds the chat-webhook Notifier settings.
type ChatConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured chat webhook timeout.
func (c ChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds the vendor-inference LLM endpoint settings.
type LLMConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxShortlist   int    `yaml:"max_shortlist"`
}

// Timeout returns the configured LLM call timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds the AWS-backed table/blob storage settings (C1-C3
// tables and the attachment blob container).
type StorageConfig struct {
	AWSRegion            string `yaml:"aws_region"`
	AWSProfile           string `yaml:"aws_profile"`
	VendorTable          string `yaml:"vendor_table"`
	TransactionTable     string `yaml:"transaction_table"`
	SubscriptionTable    string `yaml:"subscription_table"`
	AttachmentBucket     string `yaml:"attachment_bucket"`
	VendorShardThreshold int    `yaml:"vendor_shard_threshold"`
}

// GetAWSProfile mirrors the IAM-role-on-ECS override used throughout the
// rest of the stack's AWS clients.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// QueueConfig holds the four logical SQS queues and their dead-letter
// siblings (C4).
type QueueConfig struct {
	AWSRegion              string `yaml:"aws_region"`
	NotificationsURL       string `yaml:"notifications_url"`
	RawMailURL             string `yaml:"raw_mail_url"`
	ToPostURL              string `yaml:"to_post_url"`
	NotifyURL              string `yaml:"notify_url"`
	MaxDequeueCount        int    `yaml:"max_dequeue_count"`
	VisibilityTimeoutSecs  int    `yaml:"visibility_timeout_seconds"`
}

// VisibilityTimeout returns the configured per-queue visibility timeout.
func (c QueueConfig) VisibilityTimeout() time.Duration {
	if c.VisibilityTimeoutSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.VisibilityTimeoutSecs) * time.Second
}

// MaxDequeues returns the dead-letter threshold, defaulting to 3.
func (c QueueConfig) MaxDequeues() int {
	if c.MaxDequeueCount <= 0 {
		return 3
	}
	return c.MaxDequeueCount
}

// VendorConfig holds C1 matching tunables.
type VendorConfig struct {
	FuzzyThreshold    int  `yaml:"fuzzy_threshold"`
	CacheTTLMinutes   int  `yaml:"cache_ttl_minutes"`
	BlockOnCandidate  bool `yaml:"block_on_candidate_duplicate"`
}

// CacheTTL returns the read-through vendor cache TTL, defaulting to 1h.
func (c VendorConfig) CacheTTL() time.Duration {
	if c.CacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Threshold returns the fuzzy-match confidence floor, defaulting to 85.
func (c VendorConfig) Threshold() int {
	if c.FuzzyThreshold <= 0 {
		return 85
	}
	return c.FuzzyThreshold
}

// PollingConfig holds the Timer Poller's schedule (C5.3).
type PollingConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	PageSize        int  `yaml:"page_size"`
}

// Interval returns the poller tick interval, defaulting to hourly.
func (c PollingConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SubscriptionConfig holds the Subscription Manager's schedule (C7).
type SubscriptionConfig struct {
	TickIntervalHours int `yaml:"tick_interval_hours"`
	RenewBeforeHours  int `yaml:"renew_before_hours"`
}

// TickInterval returns the manager's run interval, defaulting to 6 days.
func (c SubscriptionConfig) TickInterval() time.Duration {
	if c.TickIntervalHours <= 0 {
		return 6 * 24 * time.Hour
	}
	return time.Duration(c.TickIntervalHours) * time.Hour
}

// RenewBefore returns the renewal window, defaulting to 48h.
func (c SubscriptionConfig) RenewBefore() time.Duration {
	if c.RenewBeforeHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.RenewBeforeHours) * time.Hour
}

// RateLimitConfig holds the webhook receiver's per-source rate limit.
type RateLimitConfig struct {
	Disabled            bool `yaml:"disabled"`
	RequestsPerMinute   int  `yaml:"requests_per_minute"`
	Burst               int  `yaml:"burst"`
}

// PerMinute returns the configured rate, defaulting to 10 req/min.
func (c RateLimitConfig) PerMinute() int {
	if c.RequestsPerMinute <= 0 {
		return 10
	}
	return c.RequestsPerMinute
}

// BreakerConfig holds the per-dependency circuit breaker tunables.
type BreakerConfig struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	OpenSeconds         int `yaml:"open_seconds"`
}

// OpenDuration returns how long the breaker stays open, defaulting to 60s.
func (c BreakerConfig) OpenDuration() time.Duration {
	if c.OpenSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.OpenSeconds) * time.Second
}

// Failures returns the consecutive-failure threshold, defaulting to 5.
func (c BreakerConfig) Failures() uint32 {
	if c.ConsecutiveFailures <= 0 {
		return 5
	}
	return uint32(c.ConsecutiveFailures)
}

// RedisConfig holds the distributed-lock backend used to serialize
// Subscription Manager runs across instances.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and parses the configuration file, applying defaults for any
// zero-valued field that has a documented default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Graph.TimeoutSeconds == 0 {
		cfg.Graph.TimeoutSeconds = 30
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.LLM.MaxShortlist == 0 {
		cfg.LLM.MaxShortlist = 25
	}
	if cfg.Chat.TimeoutSeconds == 0 {
		cfg.Chat.TimeoutSeconds = 10
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Storage.VendorTable == "" {
		cfg.Storage.VendorTable = "VendorMaster"
	}
	if cfg.Storage.TransactionTable == "" {
		cfg.Storage.TransactionTable = "InvoiceTransactions"
	}
	if cfg.Storage.SubscriptionTable == "" {
		cfg.Storage.SubscriptionTable = "GraphSubscriptions"
	}
	if cfg.Storage.VendorShardThreshold == 0 {
		cfg.Storage.VendorShardThreshold = 5000
	}
	if cfg.Queue.AWSRegion == "" {
		cfg.Queue.AWSRegion = cfg.Storage.AWSRegion
	}
	if cfg.Polling.IntervalMinutes == 0 {
		cfg.Polling.IntervalMinutes = 60
	}
	if cfg.Polling.PageSize == 0 {
		cfg.Polling.PageSize = 50
	}
}

// LoadFromEnv loads the YAML config and then applies environment-variable
// overrides, matching every known configuration key.
// A local .env file is loaded first (no error if missing) so secrets can
// live outside config.yaml in development, the same way the rest of the
// stack's services pick up credentials.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("INGEST_MAILBOX"); v != "" {
		cfg.Mailbox.IngestMailbox = v
	}
	if v := os.Getenv("AP_EMAIL_ADDRESS"); v != "" {
		cfg.Mailbox.APEmailAddress = v
	}
	if v := os.Getenv("ALLOWED_AP_EMAILS"); v != "" {
		cfg.Mailbox.AllowedAPEmails = splitCSV(v)
	}
	if v := os.Getenv("MAIL_WEBHOOK_URL"); v != "" {
		cfg.Graph.WebhookURL = v
	}
	if v := os.Getenv("GRAPH_CLIENT_STATE"); v != "" {
		cfg.Graph.ClientState = v
	}
	if v := os.Getenv("CHAT_WEBHOOK_URL"); v != "" {
		cfg.Chat.WebhookURL = v
	}
	if v := os.Getenv("VENDOR_FUZZY_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vendor.FuzzyThreshold = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_DISABLED"); v != "" {
		cfg.RateLimit.Disabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MAIL_INGEST_ENABLED"); v != "" {
		cfg.Polling.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FUNCTION_APP_URL"); v != "" {
		cfg.Mailbox.FunctionAppURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if cfg.Mailbox.APEmailAddress != "" && cfg.Mailbox.IsIngestMailbox(cfg.Mailbox.APEmailAddress) {
		return nil, fmt.Errorf("config: AP_EMAIL_ADDRESS must differ from INGEST_MAILBOX")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
