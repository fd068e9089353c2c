// Package database opens the Postgres connection used by the sourcing event
// sink and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"net/url"
	"strings"
	"sync"

	"osscprep/internal/config"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// OpenTelemetry SQL instrumentation
	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// DefaultDatabaseConfig returns the pool settings used when the config
// leaves them unset.
func DefaultDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
		EventBuffer:     config.DefaultEventBuffer,
	}
}

// InitDB opens the database and brings the schema up to date
func (dm *Manager) InitDB(ctx context.Context, cfg config.DatabaseConfig) (result *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDB",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Bool("migrations.enabled", true),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := dm.RunMigrations(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database after migration failure", closeErr)
		}
		return nil, err
	}
	return db, nil
}

// InitDBWithoutMigrations opens and pings the database
func (dm *Manager) InitDBWithoutMigrations(ctx context.Context, cfg config.DatabaseConfig) (result *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "InitDBWithoutMigrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(cfg.URL) == "" {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseConnection, "database url is empty")
	}
	defaults := DefaultDatabaseConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaults.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}

	// Register OpenTelemetry SQL driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to open database connection: %v", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to ping database: %v", err)
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"database":          extractDatabaseName(cfg.URL),
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})
	return db, nil
}

// RunMigrations applies every pending embedded migration
func (dm *Manager) RunMigrations(ctx context.Context, db *sql.DB) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "RunMigrations",
		attribute.String("db.system", "postgresql"),
		attribute.String("migration.type", "golang_migrate"),
	)
	defer observability.FinishSpan(span, &err)

	m, err := dm.migrator(db)
	if err != nil {
		return err
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		dm.logger.Info(ctx, "No new migrations to apply")
	case err != nil:
		return contextutils.WrapError(err, "migrate up failed")
	default:
		dm.logger.Info(ctx, "Migrations applied successfully")
	}

	if version, dirty, verr := m.Version(); verr == nil {
		span.SetAttributes(attribute.Int("migration.version", int(version)), attribute.Bool("migration.dirty", dirty))
	}
	return nil
}

// MigrationVersion reports the applied schema version. A database with no
// migrations applied reports version 0.
func (dm *Manager) MigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := dm.migrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, contextutils.WrapError(err, "failed to read migration version")
	}
	return version, dirty, nil
}

// migrator builds a golang-migrate instance over the embedded files. It is
// not closed because closing it would close db as well.
func (dm *Manager) migrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open embedded migrations")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseConnection, "failed to create migration driver: %v", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize golang-migrate")
	}
	return m, nil
}

// MigrationNames lists the embedded up migrations in order
func MigrationNames() ([]string, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}

	// key=value form: "host=localhost dbname=ossc sslmode=disable"
	for _, field := range strings.Fields(databaseURL) {
		if name, ok := strings.CutPrefix(field, "dbname="); ok && name != "" {
			return name
		}
	}

	return "osscprep"
}
