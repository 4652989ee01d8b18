// Package database 提供本地商品库的连接与迁移功能，支持 MySQL 与内嵌 SQLite。
package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/MorseWayne/shopfront/internal/config"
)

// 支持的驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DB 封装数据库连接
type DB struct {
	*sql.DB
	logger *zap.Logger
	driver string
	dsn    string
}

// New 创建数据库连接
func New(cfg *config.Config, logger *zap.Logger) (*DB, error) {
	driver, dsn, err := DSN(cfg.Database)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// 配置连接池
	if driver == DriverSQLite {
		// SQLite 同一时刻只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driver == DriverSQLite {
		logger.Info("database connected", zap.String("driver", driver), zap.String("path", cfg.Database.Path))
	} else {
		logger.Info("database connected",
			zap.String("driver", driver),
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.DBName),
		)
	}

	return &DB{DB: sqlDB, logger: logger, driver: driver, dsn: dsn}, nil
}

// DSN 根据配置生成驱动名与连接串
func DSN(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case DriverMySQL:
		return DriverMySQL, fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local&multiStatements=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName), nil
	case DriverSQLite:
		return DriverSQLite, fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Driver 返回驱动名
func (db *DB) Driver() string {
	return db.driver
}

// newMigrate 迁移使用独立连接，避免错误时影响主连接。返回的 cleanup 需由调用方执行。
func (db *DB) newMigrate(migrationsDir string) (*migrate.Migrate, func(), error) {
	migrateSQLDB, err := sql.Open(db.driver, db.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database for migration: %w", err)
	}

	var driver migratedb.Driver
	switch db.driver {
	case DriverMySQL:
		driver, err = mysql.WithInstance(migrateSQLDB, &mysql.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(migrateSQLDB, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", db.driver)
	}
	if err != nil {
		_ = migrateSQLDB.Close()
		return nil, nil, fmt.Errorf("create %s migration driver: %w", db.driver, err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsDir), db.driver, driver)
	if err != nil {
		_ = migrateSQLDB.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}

	cleanup := func() {
		_, _ = m.Close()
		_ = migrateSQLDB.Close()
	}
	return m, cleanup, nil
}

// RunMigrations 使用 go-migrate 执行所有待执行的向上迁移
func (db *DB) RunMigrations(migrationsDir string) error {
	m, cleanup, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	defer cleanup()

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d, please check and fix manually", currentVersion)
	}

	db.logger.Info("current migration version", zap.Uint("version", currentVersion))

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("get new version: %w", err)
	}

	db.logger.Info("migrations completed successfully",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

// MigrateDown 执行向下迁移（回滚）
// 注意：这个方法应该谨慎使用，特别是在生产环境中
func (db *DB) MigrateDown(migrationsDir string, steps int) error {
	m, cleanup, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	defer cleanup()

	currentVersion, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	db.logger.Info("starting migration rollback",
		zap.Uint("current_version", currentVersion),
		zap.Int("steps", steps),
	)

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get new version: %w", err)
	}

	db.logger.Info("migration rollback completed",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

// MigrateToVersion 迁移到指定版本
func (db *DB) MigrateToVersion(migrationsDir string, version uint) error {
	m, cleanup, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	defer cleanup()

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	db.logger.Info("migrating to specific version",
		zap.Uint("current_version", currentVersion),
		zap.Uint("target_version", version),
	)

	if err := m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("already at target version", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}

	db.logger.Info("migration to version completed",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", version),
	)
	return nil
}

// ForceMigrationVersion 强制设置迁移版本状态，只在修复脏状态时使用
func (db *DB) ForceMigrationVersion(migrationsDir string, version int) error {
	m, cleanup, err := db.newMigrate(migrationsDir)
	if err != nil {
		return err
	}
	defer cleanup()

	db.logger.Warn("forcing migration version", zap.Int("version", version))

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration version: %w", err)
	}

	db.logger.Info("migration version forced successfully", zap.Int("version", version))
	return nil
}

// MigrationVersion 返回当前迁移版本与脏状态
func (db *DB) MigrationVersion(migrationsDir string) (uint, bool, error) {
	m, cleanup, err := db.newMigrate(migrationsDir)
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get current version: %w", err)
	}
	return version, dirty, nil
}
