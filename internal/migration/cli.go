package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// CLI 把迁移操作渲染为终端输出
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run 执行子命令：up、down、steps N、goto V、force V、version、status
func (c *CLI) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "up", "":
		return c.apply(ctx, "Applying pending migrations", c.migrator.Up)
	case "down":
		return c.apply(ctx, "Rolling back last migration", c.migrator.Down)
	case "steps":
		n, err := intArg(command, args)
		if err != nil {
			return err
		}
		return c.apply(ctx, fmt.Sprintf("Running %d step(s)", n), func(ctx context.Context) error {
			return c.migrator.Steps(ctx, n)
		})
	case "goto":
		v, err := intArg(command, args)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("goto: version must not be negative")
		}
		return c.apply(ctx, fmt.Sprintf("Migrating to version %d", v), func(ctx context.Context) error {
			return c.migrator.Goto(ctx, uint(v))
		})
	case "force":
		v, err := intArg(command, args)
		if err != nil {
			return err
		}
		return c.apply(ctx, fmt.Sprintf("Forcing version %d", v), func(ctx context.Context) error {
			return c.migrator.Force(ctx, v)
		})
	case "version":
		return c.RunVersion(ctx)
	case "status":
		return c.RunStatus(ctx)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func intArg(command string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: expected exactly one numeric argument", command)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", command, err)
	}
	return n, nil
}

func (c *CLI) apply(ctx context.Context, banner string, op func(context.Context) error) error {
	fmt.Fprintln(c.output, banner+"...")
	if err := op(ctx); err != nil {
		return err
	}
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Done. Current version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

// RunStatus 以表格列出每个迁移
func (c *CLI) RunStatus(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "Pending"
		switch {
		case s.Dirty:
			state = "Dirty"
		case s.Applied:
			state = "Applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}
