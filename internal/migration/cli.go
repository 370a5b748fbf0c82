package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
)

// command 一个 migrate 子命令。arg 非空时需要一个版本号参数。
type command struct {
	summary string
	arg     string
	run     func(c *CLI, ctx context.Context, version int64) error
}

var commands = map[string]command{
	"up":      {summary: "Apply all pending migrations", run: (*CLI).up},
	"down":    {summary: "Roll back the last migration", run: (*CLI).down},
	"reset":   {summary: "Roll back every migration", run: (*CLI).reset},
	"status":  {summary: "List migrations and whether they are applied", run: (*CLI).status},
	"version": {summary: "Print the current schema version", run: (*CLI).version},
	"info":    {summary: "Print a migration summary", run: (*CLI).info},
	"check":   {summary: "Exit non-zero when migrations are pending or dirty", run: (*CLI).check},
	"goto":    {summary: "Migrate up or down to a version", arg: "version", run: (*CLI).gotoVersion},
	"force":   {summary: "Set the version without running migrations", arg: "version", run: (*CLI).force},
}

// Commands 返回子命令名与说明，按名字排序，供 usage 输出
func Commands() [][2]string {
	out := make([][2]string, 0, len(commands))
	for name, cmd := range commands {
		label := name
		if cmd.arg != "" {
			label += " <" + cmd.arg + ">"
		}
		out = append(out, [2]string{label, cmd.summary})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// CLI 把 Migrator 暴露为 roundtable migrate 子命令
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(m Migrator) *CLI {
	return &CLI{migrator: m, out: os.Stdout}
}

// SetOutput 替换输出目标
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// Run 执行一个子命令；args 为 flag 解析后剩下的位置参数
func (c *CLI) Run(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown migrate subcommand: %s", name)
	}
	var version int64
	if cmd.arg != "" {
		if len(args) == 0 {
			return fmt.Errorf("%s requires a %s", name, cmd.arg)
		}
		v, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil || (name == "goto" && v < 0) {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		version = v
	}
	return cmd.run(c, ctx, version)
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error { return c.version(ctx, 0) }

func (c *CLI) up(ctx context.Context, _ int64) error {
	c.printf("Running migrations...\n")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.reportVersion(ctx, "Migrations complete.")
}

func (c *CLI) down(ctx context.Context, _ int64) error {
	c.printf("Rolling back last migration...\n")
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return c.reportVersion(ctx, "Rollback complete.")
}

func (c *CLI) reset(ctx context.Context, _ int64) error {
	c.printf("Rolling back all migrations...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.printf("All migrations rolled back.\n")
	return nil
}

func (c *CLI) gotoVersion(ctx context.Context, v int64) error {
	c.printf("Migrating to version %d...\n", v)
	if err := c.migrator.Goto(ctx, uint(v)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.reportVersion(ctx, "Migration complete.")
}

func (c *CLI) force(ctx context.Context, v int64) error {
	if err := c.migrator.Force(ctx, int(v)); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	c.printf("Version forced to %d\n", v)
	return nil
}

func (c *CLI) version(ctx context.Context, _ int64) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	switch {
	case v == 0:
		c.printf("No migrations applied yet.\n")
	case dirty:
		c.printf("Current version: %d (dirty)\n", v)
	default:
		c.printf("Current version: %d\n", v)
	}
	return nil
}

func (c *CLI) status(ctx context.Context, _ int64) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, s.state())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (c *CLI) info(ctx context.Context, _ int64) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(tw, "Dirty:\t%t\n", info.Dirty)
	fmt.Fprintf(tw, "Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(tw, "Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(tw, "Pending Migrations:\t%d\n", info.PendingMigrations)
	return tw.Flush()
}

func (c *CLI) check(ctx context.Context, _ int64) error {
	info, err := CheckCurrent(ctx, c.migrator)
	if err != nil {
		return err
	}
	c.printf("Schema is current at version %d.\n", info.CurrentVersion)
	return nil
}

func (c *CLI) reportVersion(ctx context.Context, prefix string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("%s Current version: %d\n", prefix, info.CurrentVersion)
	return nil
}
