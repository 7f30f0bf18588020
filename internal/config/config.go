// Package config loads jobdigest settings from the environment, an optional
// .env file and, for the SMTP password, the OS keyring.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/FranksOps/jobdigest/internal/fingerprint"
	"github.com/FranksOps/jobdigest/pkg/proxy"
)

// Environment keys.
const (
	KeySerpAPIKey      = "SERPAPI_API_KEY"
	KeySMTPUser        = "SMTP_USER"
	KeySMTPPass        = "SMTP_PASS"
	KeyRecipient       = "RECIPIENT_EMAIL"
	KeySender          = "SENDER_EMAIL"
	KeySMTPHost        = "SMTP_HOST"
	KeySMTPPort        = "SMTP_PORT"
	KeySMTPStartTLS    = "SMTP_STARTTLS"
	KeyKeyringService  = "SMTP_KEYRING_SERVICE"
	KeyMaxResults      = "MAX_RESULTS"
	KeySerpEndpoint    = "SERPAPI_ENDPOINT"
	KeySerpGL          = "SERPAPI_GL"
	KeySerpHL          = "SERPAPI_HL"
	KeySerpRecency     = "SERPAPI_RECENCY"
	KeySerpIncludeJobs = "SERPAPI_INCLUDE_JOBS"
	KeySearchTimeout   = "SEARCH_TIMEOUT"
	KeyQueryDelay      = "QUERY_DELAY"
	KeyTLSProfile      = "TLS_PROFILE"
	KeySerpProxies     = "SERPAPI_PROXIES"
	KeySerpProxyFile   = "SERPAPI_PROXY_FILE"
	KeyProfilePath     = "PROFILE_PATH"
	KeySendEmpty       = "SEND_EMPTY"
	KeyPushgatewayURL  = "PUSHGATEWAY_URL"
	KeyLockFile        = "LOCK_FILE"
	KeyLogLevel        = "LOG_LEVEL"
	KeyLogFormat       = "LOG_FORMAT"
	KeyDotenvPath      = "DOTENV_PATH"
)

// Config is the resolved runtime configuration.
type Config struct {
	SerpAPIKey  string
	SerpAPI     SerpAPIConfig
	SMTP        SMTPConfig
	Recipient   string
	Sender      string
	MaxResults  int
	QueryDelay  time.Duration
	ProfilePath string
	SendEmpty   bool
	// PushgatewayURL enables pushing run metrics when set.
	PushgatewayURL string
	// LockFile is empty when locking is disabled.
	LockFile string
	Logging  LoggingConfig
}

// SerpAPIConfig holds the search client settings.
type SerpAPIConfig struct {
	Endpoint    string
	GL          string
	HL          string
	Recency     string
	IncludeJobs bool
	Timeout     time.Duration
	TLSProfile  fingerprint.Profile
	// Proxies is a comma separated list of egress proxies. ProxyFile names a
	// file with one proxy per line. Both may be set.
	Proxies   string
	ProxyFile string
}

// ProxyPool builds the egress proxy pool. It returns nil when no proxies are
// configured.
func (c SerpAPIConfig) ProxyPool() (*proxy.Pool, error) {
	if c.Proxies == "" && c.ProxyFile == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{})
	if err := pool.AddList(c.Proxies); err != nil {
		return nil, fmt.Errorf("config: %s: %w", KeySerpProxies, err)
	}
	if c.ProxyFile != "" {
		if err := pool.LoadFile(c.ProxyFile); err != nil {
			return nil, fmt.Errorf("config: %s: %w", KeySerpProxyFile, err)
		}
	}
	if pool.Len() == 0 {
		return nil, nil
	}
	return pool, nil
}

// SMTPConfig holds the mail submission settings.
type SMTPConfig struct {
	Host           string
	Port           int
	User           string
	Pass           string
	StartTLS       bool
	KeyringService string
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Options controls what Load requires.
type Options struct {
	// RequireMail makes the SMTP credentials and recipient mandatory. A dry
	// run only needs the search key.
	RequireMail bool
}

// MissingError lists every required setting that was not provided.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "config: missing required settings: " + strings.Join(e.Keys, ", ")
}

// DefaultLockFile is where the single-run lock lives unless LOCK_FILE says otherwise.
func DefaultLockFile() string {
	return filepath.Join(os.TempDir(), "jobdigest.lock")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySMTPHost, "smtp.gmail.com")
	v.SetDefault(KeySMTPPort, "587")
	v.SetDefault(KeyMaxResults, "10")
	v.SetDefault(KeySerpEndpoint, "https://serpapi.com/search.json")
	v.SetDefault(KeySerpGL, "in")
	v.SetDefault(KeySerpHL, "en")
	v.SetDefault(KeySerpIncludeJobs, false)
	v.SetDefault(KeySearchTimeout, "30s")
	v.SetDefault(KeyQueryDelay, "1s")
	v.SetDefault(KeyTLSProfile, string(fingerprint.ProfileGo))
	v.SetDefault(KeySendEmpty, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// LoadDotenv loads the .env file named by DOTENV_PATH (default ".env") into
// the process environment. Variables already set are never overridden and a
// missing file is not an error.
func LoadDotenv() error {
	path := os.Getenv(KeyDotenvPath)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration. Missing required values produce a
// *MissingError naming all of them; malformed values produce a validation
// error. Nothing is dialed or fetched here apart from the optional keyring
// lookup.
func Load(opts Options) (*Config, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		SerpAPIKey: strings.TrimSpace(v.GetString(KeySerpAPIKey)),
		SerpAPI: SerpAPIConfig{
			Endpoint:    v.GetString(KeySerpEndpoint),
			GL:          v.GetString(KeySerpGL),
			HL:          v.GetString(KeySerpHL),
			Recency:     v.GetString(KeySerpRecency),
			IncludeJobs: v.GetBool(KeySerpIncludeJobs),
			Proxies:     strings.TrimSpace(v.GetString(KeySerpProxies)),
			ProxyFile:   v.GetString(KeySerpProxyFile),
		},
		SMTP: SMTPConfig{
			Host:           v.GetString(KeySMTPHost),
			User:           strings.TrimSpace(v.GetString(KeySMTPUser)),
			Pass:           v.GetString(KeySMTPPass),
			KeyringService: v.GetString(KeyKeyringService),
		},
		Recipient:      strings.TrimSpace(v.GetString(KeyRecipient)),
		Sender:         strings.TrimSpace(v.GetString(KeySender)),
		ProfilePath:    v.GetString(KeyProfilePath),
		SendEmpty:      v.GetBool(KeySendEmpty),
		PushgatewayURL: v.GetString(KeyPushgatewayURL),
		LockFile:       DefaultLockFile(),
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
	}
	// an explicitly empty LOCK_FILE disables locking, which viper cannot
	// tell apart from unset
	if lf, ok := os.LookupEnv(KeyLockFile); ok {
		cfg.LockFile = lf
	}

	var errs []error
	var err error
	if cfg.SMTP.Port, err = strconv.Atoi(v.GetString(KeySMTPPort)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeySMTPPort, err))
	}
	if cfg.MaxResults, err = strconv.Atoi(v.GetString(KeyMaxResults)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyMaxResults, err))
	}
	if cfg.SerpAPI.Timeout, err = time.ParseDuration(v.GetString(KeySearchTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeySearchTimeout, err))
	}
	if cfg.QueryDelay, err = time.ParseDuration(v.GetString(KeyQueryDelay)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyQueryDelay, err))
	}
	if cfg.SerpAPI.TLSProfile, err = fingerprint.ParseProfile(v.GetString(KeyTLSProfile)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyTLSProfile, err))
	}

	cfg.SMTP.StartTLS = cfg.SMTP.Port == 587
	if v.IsSet(KeySMTPStartTLS) {
		cfg.SMTP.StartTLS = v.GetBool(KeySMTPStartTLS)
	}

	if cfg.Sender == "" {
		cfg.Sender = cfg.SMTP.User
	}

	if opts.RequireMail && cfg.SMTP.Pass == "" && cfg.SMTP.KeyringService != "" && cfg.SMTP.User != "" {
		pass, err := keyring.Get(cfg.SMTP.KeyringService, cfg.SMTP.User)
		switch {
		case err == nil:
			cfg.SMTP.Pass = pass
		case errors.Is(err, keyring.ErrNotFound):
		default:
			return nil, fmt.Errorf("config: keyring %s: %w", cfg.SMTP.KeyringService, err)
		}
	}

	var missing []string
	if cfg.SerpAPIKey == "" {
		missing = append(missing, KeySerpAPIKey)
	}
	if opts.RequireMail {
		if cfg.SMTP.User == "" {
			missing = append(missing, KeySMTPUser)
		}
		if cfg.SMTP.Pass == "" {
			missing = append(missing, KeySMTPPass)
		}
		if cfg.Recipient == "" {
			missing = append(missing, KeyRecipient)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingError{Keys: missing}
	}

	if len(errs) == 0 {
		errs = cfg.validate(opts)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate(opts Options) []error {
	var errs []error
	if c.MaxResults < 1 || c.MaxResults > 100 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 100, got %d", KeyMaxResults, c.MaxResults))
	}
	if c.SerpAPI.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeySearchTimeout))
	}
	if c.QueryDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyQueryDelay))
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s out of range: %d", KeySMTPPort, c.SMTP.Port))
	}
	if opts.RequireMail {
		if _, err := mail.ParseAddress(c.Recipient); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", KeyRecipient, c.Recipient, err))
		}
		if _, err := mail.ParseAddress(c.Sender); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", KeySender, c.Sender, err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid %s: %s (must be debug, info, warn, or error)", KeyLogLevel, c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid %s: %s (must be text or json)", KeyLogFormat, c.Logging.Format))
	}
	return errs
}
