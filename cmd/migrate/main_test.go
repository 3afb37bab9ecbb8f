package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vfoody/internal/storage/postgres"
)

type fakeMigrator struct {
	applied []string
	pending []string
	upErr   error
	calls   []string
	closed  bool
}

func (f *fakeMigrator) Up(_ context.Context, steps int) ([]string, error) {
	f.calls = append(f.calls, "up")
	if f.upErr != nil {
		return nil, f.upErr
	}
	n := len(f.pending)
	if steps > 0 && steps < n {
		n = steps
	}
	moved := append([]string(nil), f.pending[:n]...)
	f.applied = append(f.applied, moved...)
	f.pending = f.pending[n:]
	return moved, nil
}

func (f *fakeMigrator) Down(_ context.Context, steps int) ([]string, error) {
	f.calls = append(f.calls, "down")
	if steps <= 0 {
		steps = 1
	}
	var moved []string
	for ; steps > 0 && len(f.applied) > 0; steps-- {
		last := f.applied[len(f.applied)-1]
		f.applied = f.applied[:len(f.applied)-1]
		f.pending = append([]string{last}, f.pending...)
		moved = append(moved, last)
	}
	return moved, nil
}

func (f *fakeMigrator) Status(context.Context) (postgres.MigrationState, error) {
	f.calls = append(f.calls, "status")
	return postgres.MigrationState{Version: int64(len(f.applied)), Applied: len(f.applied), Pending: f.pending}, nil
}

func useFakeMigrator(t *testing.T, m *fakeMigrator) {
	t.Helper()
	old := openMigrator
	t.Cleanup(func() { openMigrator = old })
	openMigrator = func(context.Context, string, *log.Entry) (schemaMigrator, func() error, error) {
		return m, func() error { m.closed = true; return nil }, nil
	}
}

func parseTestOptions(args []string, env map[string]string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	return parseOptions(fs, args, func(key string) string { return env[key] })
}

func TestParseOptions(t *testing.T) {
	opts, err := parseTestOptions([]string{"-direction= DOWN ", "-steps=2"}, map[string]string{dsnEnv: "postgres://env"})
	require.NoError(t, err)
	require.Equal(t, options{direction: "down", steps: 2, dsn: "postgres://env", timeout: defaultTimeout}, opts)

	opts, err = parseTestOptions([]string{"-dsn=postgres://flag"}, map[string]string{dsnEnv: "postgres://env"})
	require.NoError(t, err)
	require.Equal(t, "postgres://flag", opts.dsn)
	require.Equal(t, "up", opts.direction)
}

func TestParseOptions_Errors(t *testing.T) {
	cases := []struct {
		args    []string
		wantErr string
	}{
		{args: nil, wantErr: "VFOODY_POSTGRES_DSN (or -dsn) is required"},
		{args: []string{"-dsn=x", "-direction=sideways"}, wantErr: "unsupported direction"},
		{args: []string{"-dsn=x", "-steps=-1"}, wantErr: "steps must be >= 0"},
		{args: []string{"-dsn=x", "-timeout=0s"}, wantErr: "timeout must be > 0"},
	}
	for _, tc := range cases {
		_, err := parseTestOptions(tc.args, nil)
		require.ErrorContains(t, err, tc.wantErr, "args %v", tc.args)
	}
}

func TestRun_UpDownStatus(t *testing.T) {
	m := &fakeMigrator{pending: []string{"0001_init", "0002_catalog"}}
	useFakeMigrator(t, m)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), options{direction: "up", steps: 1, dsn: "x"}, &out))
	require.Equal(t, "migrate up ok: changed=0001_init\nschema: version=1 applied=1 pending=0002_catalog\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), options{direction: "up", dsn: "x"}, &out))
	require.Contains(t, out.String(), "pending=none")

	out.Reset()
	require.NoError(t, run(context.Background(), options{direction: "down", dsn: "x"}, &out))
	require.Equal(t, "migrate down ok: changed=0002_catalog\nschema: version=1 applied=1 pending=0002_catalog\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), options{direction: "status", dsn: "x"}, &out))
	require.Equal(t, "schema: version=1 applied=1 pending=0002_catalog\n", out.String())

	require.Equal(t, []string{"up", "status", "up", "status", "down", "status", "status"}, m.calls)
	require.True(t, m.closed)
}

func TestRun_Errors(t *testing.T) {
	useFakeMigrator(t, &fakeMigrator{upErr: postgres.ErrMigrationDrift})
	err := run(context.Background(), options{direction: "up", dsn: "x"}, &bytes.Buffer{})
	require.ErrorIs(t, err, postgres.ErrMigrationDrift)

	openMigrator = func(context.Context, string, *log.Entry) (schemaMigrator, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}
	err = run(context.Background(), options{direction: "status", dsn: "x"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "connection refused")
}

func TestRun_AgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres integration tests are skipped in short mode")
	}
	dsn := os.Getenv("VFOODY_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("VFOODY_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, options{direction: "up", dsn: dsn}, &out))
	require.NoError(t, run(ctx, options{direction: "status", dsn: dsn}, &out))
	require.Contains(t, out.String(), "version=2 applied=2 pending=none")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.NotZero(t, exitErr.ExitCode())
}
