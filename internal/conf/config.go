package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds the settings shared by the proxy, the mail API and the
// delivery daemon. Each binary reads the sections it needs.
type Config struct {
	Domain   string         `yaml:"domain"`
	IMAP     IMAPConfig     `yaml:"imap"`
	API      APIConfig      `yaml:"api"`
	AWS      AWSConfig      `yaml:"aws"`
	Storage  StorageConfig  `yaml:"storage"`
	Store    StoreConfig    `yaml:"store"`
	Outbound OutboundConfig `yaml:"outbound"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IMAPConfig configures the protocol proxy.
type IMAPConfig struct {
	Address        string `yaml:"address"`
	TLSCert        string `yaml:"tls_cert"`
	TLSKey         string `yaml:"tls_key"`
	APIURL         string `yaml:"api_url"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds per backing call
	IdleTimeout    int    `yaml:"idle_timeout"`    // seconds without input before the connection is dropped
	MetricsAddress string `yaml:"metrics_address"`
}

// APIConfig configures the HTTP mail API.
type APIConfig struct {
	Address         string `yaml:"address"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTL        int    `yaml:"token_ttl"` // seconds
	AllowedOrigin   string `yaml:"allowed_origin"`
	ReadConcurrency int    `yaml:"read_concurrency"`
	PreviewLength   int    `yaml:"preview_length"`
}

type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // optional, for S3/DynamoDB compatible local services
	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// StorageConfig selects the object store holding raw messages.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // s3, bolt, memory
	Bucket   string `yaml:"bucket"`
	BoltPath string `yaml:"bolt_path"`
}

// StoreConfig selects where users and message flags live.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // dynamodb, sqlite, postgres, memory
	UsersTable  string `yaml:"users_table"`
	FlagsTable  string `yaml:"flags_table"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
}

// OutboundConfig selects the send service.
type OutboundConfig struct {
	Backend      string `yaml:"backend"` // ses, smtp, memory
	SMTPAddress  string `yaml:"smtp_address"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
}

// DeliveryConfig configures the LMTP delivery daemon.
type DeliveryConfig struct {
	UnixSocket    string `yaml:"unix_socket"`
	TCPAddress    string `yaml:"tcp_address"`
	MaxSize       int64  `yaml:"max_size"`       // Maximum message size in bytes
	Timeout       int    `yaml:"timeout"`        // Connection timeout in seconds
	Hostname      string `yaml:"hostname"`       // Server hostname for LHLO
	MaxRecipients int    `yaml:"max_recipients"` // Maximum recipients per transaction

	AllowedDomains    []string `yaml:"allowed_domains"`     // List of allowed recipient domains
	RejectUnknownUser bool     `yaml:"reject_unknown_user"` // Reject recipients without a user record
}

// TimeoutDuration is the per-command read and write deadline of an LMTP
// connection.
func (d DeliveryConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // log level: debug, info, warn, error
	Format string `yaml:"format"` // log format: text, json
}

// ConfigPaths lists where LoadConfig looks for a YAML file, in order.
var ConfigPaths = []string{
	"/etc/mailgate/mailgate.yaml",
	"./config/mailgate.yaml",
	"./mailgate.yaml",
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		IMAP: IMAPConfig{
			Address:        ":1993",
			APIURL:         "http://127.0.0.1:8080",
			RequestTimeout: 30,
			IdleTimeout:    1800, // 30 minutes
		},
		API: APIConfig{
			Address:         ":8080",
			TokenTTL:        86400,
			AllowedOrigin:   "*",
			ReadConcurrency: 16,
			PreviewLength:   200,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Storage: StorageConfig{
			Backend:  "s3",
			Bucket:   "stacks-production-email",
			BoltPath: "data/messages.db",
		},
		Store: StoreConfig{
			Backend:    "dynamodb",
			UsersTable: "stacks-mail-users",
			SQLitePath: "data/mailgate.db",
		},
		Outbound: OutboundConfig{
			Backend: "ses",
		},
		Delivery: DeliveryConfig{
			TCPAddress:    "127.0.0.1:24",
			MaxSize:       52428800, // 50MB
			Timeout:       300,      // 5 minutes
			Hostname:      "localhost",
			MaxRecipients: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the first config file found in ConfigPaths, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment are enough to run.
func LoadConfig() (*Config, error) {
	for _, path := range ConfigPaths {
		cfg, err := LoadConfigFile(path)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load reads path when it is set and searches ConfigPaths otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadConfig()
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads configuration from a YAML file, then applies
// environment overrides and validates the result.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads an optional .env file from the working directory and then
// overlays the recognised environment variables.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if port := os.Getenv("IMAP_PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid IMAP_PORT %q: %w", port, err)
		}
		c.IMAP.Address = ":" + port
	}
	setString(&c.IMAP.APIURL, "MAIL_API_URL")
	setString(&c.IMAP.TLSCert, "TLS_CERT_PATH")
	setString(&c.IMAP.TLSKey, "TLS_KEY_PATH")
	setString(&c.Storage.Bucket, "EMAIL_BUCKET")
	setString(&c.Store.UsersTable, "USERS_TABLE")
	setString(&c.Store.FlagsTable, "FLAGS_TABLE")
	setString(&c.AWS.Region, "AWS_REGION")
	setString(&c.Domain, "EMAIL_DOMAIN")
	setString(&c.API.JWTSecret, "MAIL_API_JWT_SECRET")
	setString(&c.Store.PostgresURL, "DATABASE_URL")
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IMAP.Address == "" {
		return fmt.Errorf("imap address cannot be empty")
	}
	if c.IMAP.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.IMAP.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if c.API.ReadConcurrency <= 0 {
		return fmt.Errorf("read_concurrency must be positive")
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("bucket cannot be empty for the s3 backend")
		}
	case "bolt":
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("bolt_path cannot be empty for the bolt backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	switch c.Store.Backend {
	case "dynamodb":
		if c.Store.UsersTable == "" {
			return fmt.Errorf("users_table cannot be empty for the dynamodb backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite_path cannot be empty for the sqlite backend")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres_url cannot be empty for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	switch c.Outbound.Backend {
	case "ses", "memory":
	case "smtp":
		if c.Outbound.SMTPAddress == "" {
			return fmt.Errorf("smtp_address cannot be empty for the smtp backend")
		}
	default:
		return fmt.Errorf("invalid outbound backend: %s", c.Outbound.Backend)
	}

	if c.Delivery.UnixSocket == "" && c.Delivery.TCPAddress == "" {
		return fmt.Errorf("at least one of unix_socket or tcp_address must be specified")
	}
	if c.Delivery.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if c.Delivery.MaxRecipients <= 0 {
		return fmt.Errorf("max_recipients must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// FlagsTableName returns the flag table, defaulting to "<users_table>-flags".
func (s StoreConfig) FlagsTableName() string {
	if s.FlagsTable != "" {
		return s.FlagsTable
	}
	return s.UsersTable + "-flags"
}

func (i IMAPConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(i.RequestTimeout) * time.Second
}

func (i IMAPConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(i.IdleTimeout) * time.Second
}

func (a APIConfig) TokenTTLDuration() time.Duration {
	return time.Duration(a.TokenTTL) * time.Second
}
