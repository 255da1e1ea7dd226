package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/BaSui01/recipeflow/config"

	"github.com/BaSui01/recipeflow/internal/migration"
	"go.uber.org/zap"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `recipeflow migrate <subcommand> [args] [--config path]`.
func runMigrate(args []string) {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		if len(args) < 1 {
			os.Exit(1)
		}
		return
	}

	subcommand := args[0]
	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	positional, flags := splitMigrateArgs(args[1:])
	fs.Parse(flags)
	positional = append(positional, fs.Args()...)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate(ctx, cfg.Database, subcommand, positional, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// migrate 打开审计库迁移器并执行子命令
func migrate(ctx context.Context, dbCfg config.DatabaseConfig, command string, args []string, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	return migration.NewCLI(m).Run(ctx, command, args)
}

// splitMigrateArgs 把数字参数（如 steps -1）与 flag 分开，避免被 flag 包当作未知选项
func splitMigrateArgs(args []string) (positional, flags []string) {
	for _, a := range args {
		if _, err := strconv.Atoi(a); err == nil {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
	}
	return positional, flags
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  recipeflow migrate <subcommand> [options] [argument]

Subcommands:
  up          Apply all pending migrations
  down        Roll back the last migration
  steps <n>   Apply (n > 0) or roll back (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)

The target database is the audit log database from the 'database' config
section (RECIPEFLOW_DATABASE_* environment variables).

Examples:
  recipeflow migrate up
  recipeflow migrate status --config /etc/recipeflow/config.yaml
  recipeflow migrate steps -1
  recipeflow migrate force 1`)
}
