package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnv         = "VFOODY_POSTGRES_DSN"
)

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

// schemaMigrator: часть postgres.Migrator, нужная командам up/down/status.
type schemaMigrator interface {
	Up(ctx context.Context, steps int) ([]string, error)
	Down(ctx context.Context, steps int) ([]string, error)
	Status(ctx context.Context) (postgres.MigrationState, error)
}

var openMigrator = func(ctx context.Context, dsn string, logger *log.Entry) (schemaMigrator, func() error, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return store.Migrator(logger), store.Close, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseOptions(fs *flag.FlagSet, args []string, getenv func(string) string) (options, error) {
	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(dsnEnv))
	}

	var errs []error
	if opts.dsn == "" {
		errs = append(errs, fmt.Errorf("%s (or -dsn) is required", dsnEnv))
	}
	switch opts.direction {
	case "up", "down", "status":
	default:
		errs = append(errs, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction))
	}
	if opts.steps < 0 {
		errs = append(errs, errors.New("steps must be >= 0"))
	}
	if opts.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	logger := log.WithFields(log.Fields{"component": "migrate", "direction": opts.direction})

	m, closeFn, err := openMigrator(ctx, opts.dsn, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	var changed []string
	switch opts.direction {
	case "up":
		changed, err = m.Up(ctx, opts.steps)
	case "down":
		changed, err = m.Down(ctx, opts.steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", opts.direction, err)
	}

	state, err := m.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}

	if opts.direction != "status" {
		_, _ = fmt.Fprintf(out, "migrate %s ok: changed=%s\n", opts.direction, listOrNone(changed))
	}
	_, _ = fmt.Fprintf(out, "schema: version=%d applied=%d pending=%s\n", state.Version, state.Applied, listOrNone(state.Pending))
	return nil
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ",")
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
