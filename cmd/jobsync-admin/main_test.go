package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/service"
	"github.com/target/jobsync/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedKV(t *testing.T) *testutil.MemoryKV {
	t.Helper()
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, service.TrackerKeyPrefix+"a", "true", 0))
	require.NoError(t, kv.Set(ctx, service.TrackerKeyPrefix+"b", "false", 0))
	require.NoError(t, kv.Set(ctx, service.TrackerKeyPrefix+"c", "false", 0))
	require.NoError(t, kv.Set(ctx, service.CacheKeyPrefix+"a", "1", time.Hour))
	require.NoError(t, kv.Set(ctx, service.PassMarkerKey, "pass-123", 0))
	return kv
}

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: jobsync-admin <command> [flags]")
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "  export"), strings.Index(out, "  tracker-reset"))
}

func TestCollectTrackerReport(t *testing.T) {
	kv := seedKV(t)

	report, err := collectTrackerReport(context.Background(), kv, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, service.TrackerCounts{Live: 1, NotLive: 2}, report.Counts)
	assert.Equal(t, 1, report.CacheKeys)
	assert.True(t, report.PassPending)
	assert.Equal(t, "pass-123", report.PassID)

	var buf bytes.Buffer
	require.NoError(t, printTrackerReport(&buf, report))
	assert.Contains(t, buf.String(), "pass-123 (interrupted, next pass resumes)")
	assert.Regexp(t, `tracked\s+3`, buf.String())
}

func TestResetTrackerState(t *testing.T) {
	kv := seedKV(t)
	require.NoError(t, kv.Set(context.Background(), "unrelated", "keep", 0))

	res, err := resetTrackerState(context.Background(), kv, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.TrackerKeys)
	assert.Equal(t, int64(1), res.CacheKeys)
	assert.True(t, res.PassMarker)
	assert.Empty(t, kv.Snapshot(service.TrackerKeyPrefix))
	assert.Empty(t, kv.Snapshot(service.CacheKeyPrefix))
	assert.Equal(t, map[string]string{"unrelated": "keep"}, kv.Snapshot("unrelated"))
}

func TestResetTrackerState_MarkerFailureStops(t *testing.T) {
	kv := seedKV(t)
	kv.Fail("Delete", errors.New("redis down"))

	_, err := resetTrackerState(context.Background(), kv, discardLogger())
	require.Error(t, err)
	assert.Len(t, kv.Snapshot(service.TrackerKeyPrefix), 3)
}

func TestParseTrackerResetFlags(t *testing.T) {
	opts, err := parseTrackerResetFlags([]string{"--yes", "--dry-run"})
	require.NoError(t, err)
	assert.True(t, opts.Yes)
	assert.True(t, opts.DryRun)

	_, err = parseTrackerResetFlags([]string{"--bogus"})
	require.Error(t, err)
}

func TestParseFlagValidation(t *testing.T) {
	_, err := parseMigrateFlags("migrate", []string{"--timeout=0s"})
	require.Error(t, err)

	_, err = parseExportFlags([]string{"--timeout=-1s"})
	require.Error(t, err)

	opts, err := parseExportFlags([]string{"--dir", "/tmp/out"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", opts.Dir)
	assert.Equal(t, "output_data_pg.csv", opts.RelationalFile)

	_, err = parseRunOnceFlags([]string{"--timeout=-5m"})
	require.Error(t, err)
}

func TestConfirmAction(t *testing.T) {
	tests := []struct {
		name    string
		opts    trackerResetOptions
		input   string
		wantErr bool
	}{
		{name: "yes flag skips prompt", opts: trackerResetOptions{Yes: true}},
		{name: "dry run skips prompt", opts: trackerResetOptions{DryRun: true}},
		{name: "accepts y", input: "y\n"},
		{name: "accepts yes without newline", input: "YES"},
		{name: "rejects empty", input: "\n", wantErr: true},
		{name: "rejects eof", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmdCtx := &commandContext{Stdout: &out, Stdin: strings.NewReader(tt.input)}

			err := confirmAction(cmdCtx, tt.opts, "reset tracker state")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, out.String(), "WARNING")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPrintPassReport(t *testing.T) {
	start := testutil.TestTime()
	report := &model.PassReport{
		PassID:        "pass-1",
		Phase:         model.PhaseDone,
		Bootstrapped:  10,
		Pages:         3,
		Listings:      42,
		NewListings:   2,
		Written:       2,
		WriteFailures: map[string]int{"document": 1},
		Stale:         []model.Identifier{"R1_Engineer_None"},
		Deleted:       map[string]int64{"relational": 1, "document": 1},
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
	}

	var buf bytes.Buffer
	require.NoError(t, printPassReport(&buf, report, true))

	out := buf.String()
	assert.Regexp(t, `listings\s+42`, out)
	assert.Regexp(t, `duration\s+1\.5s`, out)
	assert.Regexp(t, `write failures \(document\)\s+1`, out)
	assert.Less(t, strings.Index(out, "deleted (document)"), strings.Index(out, "deleted (relational)"))
	assert.Contains(t, out, "Stale identifiers:\n  R1_Engineer_None")
}
