package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager owns the GORM connection pool the natural-id store queries through
type Manager struct {
	config *Config
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger routes GORM query logging through logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager connects to MySQL using config
func NewManager(config *Config, opts ...Option) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dsn, err := config.GetDSN()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return open(config, mysql.Open(dsn), opts)
}

// NewManagerWithDialector opens the database through an arbitrary GORM dialector.
// Connection settings are not validated; pool and query settings still apply.
func NewManagerWithDialector(config *Config, dialector gorm.Dialector, opts ...Option) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.validatePool(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return open(config, dialector, opts)
}

func open(config *Config, dialector gorm.Dialector, opts []Option) (*Manager, error) {
	m := &Manager{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	gormConfig := &gorm.Config{
		SkipDefaultTransaction: config.SkipDefaultTransaction,
		PrepareStmt:            config.PrepareStmt,
		Logger: logger.New(slogWriter{m.logger}, logger.Config{
			SlowThreshold:             config.Logging.SlowQueryThreshold,
			LogLevel:                  getLogLevel(config.Logging.Level),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      !config.Logging.LogQueryParameters,
		}),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	m.db = db
	return m, nil
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() (*sql.DB, error) {
	return m.db.DB()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() (sql.DBStats, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

// WithQueryTimeout bounds ctx by the configured QueryTimeout.
// A deadline already on ctx that is sooner wins.
func (m *Manager) WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.QueryTimeout)
}

// slogWriter adapts slog to GORM's logger.Writer
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "gorm")
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info", "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}
