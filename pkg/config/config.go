// Package config loads and validates the service configuration from YAML.
// Every operational threshold lives here with a production default, so an
// empty file yields a runnable service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Duration wraps time.Duration so YAML can carry values like "15m"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Notify    NotifyConfig    `yaml:"notify"`
	Audit     AuditConfig     `yaml:"audit"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`
	Registry  RegistryConfig  `yaml:"registry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr" validate:"required"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds the authentication gate settings
type AuthConfig struct {
	// TokenSecret signs session tokens. Minimum 32 characters.
	TokenSecret string `yaml:"token_secret" validate:"required,min=32"`
	// TOTPSkew is the number of time steps accepted either side of now
	TOTPSkew uint `yaml:"totp_skew" validate:"max=2"`
	// LocationMaxAge rejects stale location fixes
	LocationMaxAge Duration `yaml:"location_max_age"`
	// MaxFailures before lockout
	MaxFailures int `yaml:"max_failures" validate:"min=1"`
	// FailureWindow over which failures accumulate
	FailureWindow Duration `yaml:"failure_window"`
	// LockoutCooldown after the threshold is reached
	LockoutCooldown Duration `yaml:"lockout_cooldown"`
	// RequireTrustedTransport rejects sessions arriving outside the
	// approved tunnel
	RequireTrustedTransport bool `yaml:"require_trusted_transport"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	TTL           Duration `yaml:"ttl"`
	Ceiling       Duration `yaml:"ceiling"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// ApprovalConfig holds the approval policy
type ApprovalConfig struct {
	TimeoutLow      Duration `yaml:"timeout_low"`
	TimeoutMedium   Duration `yaml:"timeout_medium"`
	TimeoutHigh     Duration `yaml:"timeout_high"`
	MaxLevel        int      `yaml:"max_level" validate:"min=1,max=5"`
	AutoApproveCert string   `yaml:"auto_approve_cert"`
}

// NotifyConfig holds delivery channel settings
type NotifyConfig struct {
	MaxAttempts int      `yaml:"max_attempts" validate:"min=1"`
	BaseDelay   Duration `yaml:"base_delay"`

	SMTPAddr    string `yaml:"smtp_addr"`
	SMTPFrom    string `yaml:"smtp_from" validate:"omitempty,email"`
	SMSGateway  string `yaml:"sms_gateway" validate:"omitempty,url"`
	SMSAPIKey   string `yaml:"sms_api_key"`
	ChatWebhook string `yaml:"chat_webhook" validate:"omitempty,url"`
}

// AuditConfig holds audit log persistence and archival settings
type AuditConfig struct {
	LogDir       string   `yaml:"log_dir" validate:"required"`
	RotationSize int64    `yaml:"rotation_size"`
	RotationTime Duration `yaml:"rotation_time"`

	ArchiveBucket    string   `yaml:"archive_bucket"`
	ArchivePrefix    string   `yaml:"archive_prefix"`
	ArchiveRegion    string   `yaml:"archive_region"`
	ArchiveEndpoint  string   `yaml:"archive_endpoint"`
	ArchiveAccessKey string   `yaml:"archive_access_key"`
	ArchiveSecretKey string   `yaml:"archive_secret_key"`
	ArchiveTimeout   Duration `yaml:"archive_timeout"`
}

// EvidenceConfig holds the evidence blob store settings
type EvidenceConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	MaxBlobSize int64  `yaml:"max_blob_size"`
}

// DiagnosisConfig holds the external analysis and planning endpoints
type DiagnosisConfig struct {
	AnalysisURL   string   `yaml:"analysis_url" validate:"required,url"`
	PlanURL       string   `yaml:"plan_url" validate:"required,url"`
	CallTimeout   Duration `yaml:"call_timeout"`
	MinConfidence float64  `yaml:"min_confidence" validate:"min=0,max=1"`
}

// RegistryConfig holds the operator and zone registry persistence root
type RegistryConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns production defaults. TokenSecret has no default and must
// be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8443",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Auth: AuthConfig{
			TOTPSkew:                1,
			LocationMaxAge:          Duration(2 * time.Minute),
			MaxFailures:             3,
			FailureWindow:           Duration(15 * time.Minute),
			LockoutCooldown:         Duration(15 * time.Minute),
			RequireTrustedTransport: true,
		},
		Session: SessionConfig{
			TTL:           Duration(8 * time.Hour),
			Ceiling:       Duration(24 * time.Hour),
			SweepInterval: Duration(30 * time.Second),
		},
		Approval: ApprovalConfig{
			TimeoutLow:      Duration(5 * time.Minute),
			TimeoutMedium:   Duration(15 * time.Minute),
			TimeoutHigh:     Duration(30 * time.Minute),
			MaxLevel:        3,
			AutoApproveCert: "certified-low-risk",
		},
		Notify: NotifyConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(2 * time.Second),
		},
		Audit: AuditConfig{
			LogDir:         "./data/audit",
			RotationSize:   100 * 1024 * 1024,
			RotationTime:   Duration(24 * time.Hour),
			ArchiveTimeout: Duration(30 * time.Second),
		},
		Evidence: EvidenceConfig{
			Dir:         "./data/evidence",
			MaxBlobSize: 32 * 1024 * 1024,
		},
		Diagnosis: DiagnosisConfig{
			AnalysisURL:   "http://localhost:9090",
			PlanURL:       "http://localhost:9091",
			CallTimeout:   Duration(30 * time.Second),
			MinConfidence: 0.5,
		},
		Registry: RegistryConfig{
			DataDir: "./data/registry",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// An empty path returns pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if secret := os.Getenv("FIELDGATE_TOKEN_SECRET"); secret != "" {
		cfg.Auth.TokenSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config: field %s failed %q", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
