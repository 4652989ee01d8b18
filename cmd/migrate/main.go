// Package main 提供本地商品库迁移管理的命令行工具
// 基于 go-migrate 库，支持向上迁移、向下迁移和版本管理
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MorseWayne/shopfront/internal/config"
	"github.com/MorseWayne/shopfront/internal/database"
	"github.com/MorseWayne/shopfront/internal/logger"
)

// migrator 每个子命令执行前建立的迁移上下文
type migrator struct {
	db     *database.DB
	logger *zap.Logger
	dir    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dir string
		m   = &migrator{}
	)

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the local product database schema",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return m.open(dir)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			m.close()
		},
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("steps must be positive, got %d", steps)
			}
			m.logger.Sugar().Infow("running down migrations", "steps", steps)
			if err := m.db.MigrateDown(m.dir, steps); err != nil {
				return fmt.Errorf("run down migrations: %w", err)
			}
			m.logger.Info("down migrations completed successfully")
			return nil
		},
	}
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m.logger.Info("running up migrations...")
				if err := m.db.RunMigrations(m.dir); err != nil {
					return fmt.Errorf("run up migrations: %w", err)
				}
				m.logger.Info("up migrations completed successfully")
				return nil
			},
		},
		downCmd,
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to the given version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil || version == 0 {
					return fmt.Errorf("invalid target version %q", args[0])
				}
				m.logger.Sugar().Infow("migrating to version", "target", version)
				if err := m.db.MigrateToVersion(m.dir, uint(version)); err != nil {
					return fmt.Errorf("migrate to version %d: %w", version, err)
				}
				m.logger.Info("version migration completed successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the migration version and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				// 版本 0 表示重置到无迁移状态
				version, err := strconv.Atoi(args[0])
				if err != nil || version < 0 {
					return fmt.Errorf("invalid target version %q", args[0])
				}
				m.logger.Sugar().Warnw("forcing migration version, dirty state will be cleared", "target", version)
				if err := m.db.ForceMigrationVersion(m.dir, version); err != nil {
					return fmt.Errorf("force migration version: %w", err)
				}
				m.logger.Info("migration version forced successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				version, dirty, err := m.db.MigrationVersion(m.dir)
				if err != nil {
					return fmt.Errorf("get migration version: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return err
			},
		},
	)

	return root
}

// open 加载配置并连接数据库
func (m *migrator) open(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	m.db, m.logger, m.dir = db, lg, cfg.Migrations.Dir
	if dir != "" {
		m.dir = dir
	}
	return nil
}

func (m *migrator) close() {
	if m.db == nil {
		return
	}
	if err := m.db.Close(); err != nil {
		m.logger.Sugar().Errorw("failed to close database", "error", err)
	}
	_ = m.logger.Sync()
}
