package db

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds MySQL/GORM configuration for the natural-id store
type Config struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	Collation string `json:"collation" yaml:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone"`   // Default: UTC

	SkipDefaultTransaction bool          `json:"skip_default_transaction" yaml:"skip_default_transaction"`
	PrepareStmt            bool          `json:"prepare_stmt" yaml:"prepare_stmt"`
	QueryTimeout           time.Duration `json:"query_timeout" yaml:"query_timeout"` // applied to every store call; 0 disables

	SSL SSLConfig `json:"ssl" yaml:"ssl"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SSLConfig enables TLS to MySQL. Files are PEM encoded.
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CertFile   string `json:"cert_file" yaml:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify"`
	ServerName string `json:"server_name" yaml:"server_name"`
	MinVersion string `json:"min_version" yaml:"min_version"` // TLS1.2 (default) or TLS1.3
}

// LoggingConfig controls GORM query logging
type LoggingConfig struct {
	Level              string        `json:"level" yaml:"level"` // silent, error, warn, info
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold"`
	LogQueryParameters bool          `json:"log_query_parameters" yaml:"log_query_parameters"`
}

// DefaultConfig returns a MySQL configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            3306,
		Collation:       "utf8mb4_unicode_ci",
		TimeZone:        "UTC",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		PrepareStmt:     true,
		QueryTimeout:    30 * time.Second,
		Logging: LoggingConfig{
			Level:              "error",
			SlowQueryThreshold: 200 * time.Millisecond,
		},
	}
}

// Validate checks if the database configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("database username is required")
	}
	return c.validatePool()
}

func (c *Config) validatePool() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout cannot be negative")
	}

	if c.SSL.Enabled && !c.SSL.SkipVerify {
		if err := c.validateTLSFiles(); err != nil {
			return fmt.Errorf("TLS configuration error: %w", err)
		}
	}
	if _, err := tlsVersion(c.SSL.MinVersion); err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}
	return nil
}

// validateTLSFiles validates that TLS certificate files exist and are readable
func (c *Config) validateTLSFiles() error {
	if c.SSL.CAFile != "" {
		if _, err := os.Stat(c.SSL.CAFile); err != nil {
			return fmt.Errorf("CA file not accessible: %w", err)
		}
	}

	if c.SSL.CertFile != "" || c.SSL.KeyFile != "" {
		// Both cert and key must be provided together
		if c.SSL.CertFile == "" || c.SSL.KeyFile == "" {
			return fmt.Errorf("both CertFile and KeyFile must be provided together")
		}
		if _, err := os.Stat(c.SSL.CertFile); err != nil {
			return fmt.Errorf("client certificate file not accessible: %w", err)
		}
		if _, err := os.Stat(c.SSL.KeyFile); err != nil {
			return fmt.Errorf("client key file not accessible: %w", err)
		}
	}
	return nil
}

// GetDSN returns the MySQL Data Source Name built with the driver's config builder.
// A custom TLS configuration is registered with the driver when SSL is enabled.
func (c *Config) GetDSN() (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.Collation = c.Collation
	cfg.Loc = parseLocation(c.TimeZone)
	cfg.ParseTime = true

	if c.SSL.Enabled {
		if c.SSL.SkipVerify {
			cfg.TLSConfig = "skip-verify"
		} else {
			tlsName, err := c.registerTLS()
			if err != nil {
				return "", err
			}
			cfg.TLSConfig = tlsName
		}
	}

	return cfg.FormatDSN(), nil
}

func (c *Config) registerTLS() (string, error) {
	minVersion, err := tlsVersion(c.SSL.MinVersion)
	if err != nil {
		return "", err
	}
	tlsConfig := &tls.Config{
		MinVersion: minVersion,
		ServerName: c.SSL.ServerName,
	}

	if c.SSL.CAFile != "" {
		caCert, err := os.ReadFile(c.SSL.CAFile)
		if err != nil {
			return "", fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return "", fmt.Errorf("invalid CA certificate in %s", c.SSL.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if c.SSL.CertFile != "" && c.SSL.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.SSL.CertFile, c.SSL.KeyFile)
		if err != nil {
			return "", fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	// Re-registering the same name replaces the previous config
	name := c.tlsConfigName()
	if err := mysql.RegisterTLSConfig(name, tlsConfig); err != nil {
		return "", fmt.Errorf("failed to register TLS config: %w", err)
	}
	return name, nil
}

// tlsConfigName derives a stable registration name from the SSL settings
func (c *Config) tlsConfigName() string {
	h := sha256.New()
	h.Write([]byte(c.SSL.CAFile))
	h.Write([]byte(c.SSL.CertFile))
	h.Write([]byte(c.SSL.KeyFile))
	h.Write([]byte(c.SSL.ServerName))
	h.Write([]byte(c.SSL.MinVersion))
	return "natid4go_tls_" + hex.EncodeToString(h.Sum(nil))[:16]
}

func tlsVersion(v string) (uint16, error) {
	switch strings.ToUpper(strings.ReplaceAll(v, " ", "")) {
	case "", "TLS1.2":
		return tls.VersionTLS12, nil
	case "TLS1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q", v)
	}
}

// parseLocation parses timezone string to *time.Location
func parseLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
