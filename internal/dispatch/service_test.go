package dispatch

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mnsched/internal/eventbus"
	"mnsched/internal/schedule"
	"mnsched/internal/store"
	"mnsched/pkg/logx"
)

func newTestService(t *testing.T, poll time.Duration) (*store.Store, *Service, eventbus.Bus) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "sched.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	svc := New(st, schedule.NewCalculator("UTC"), bus, logx.Nop(), Options{
		PollInterval:   poll,
		MaxConcurrency: 2,
	})
	return st, svc, bus
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = svc.Stop(stopCtx)
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("condition not reached within timeout")
}

func TestDispatchRunsEchoJob(t *testing.T) {
	st, svc, bus := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	events, unsub := bus.Subscribe(16)
	defer unsub()

	outPath := filepath.Join(t.TempDir(), "logs", "echo.out")
	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "echo-hello",
		ProgramPath:     "/bin/echo",
		Args:            "hello",
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: sql.NullInt64{Int64: 60, Valid: true},
		Timezone:        "UTC",
		Enabled:         true,
		StdoutPath:      store.NullString(outPath),
	})
	require.NoError(t, err)
	require.NoError(t, st.Kick(ctx, id))

	startService(t, svc)

	var runs []store.Run
	waitFor(t, 5*time.Second, func() bool {
		runs, _ = st.RunsForJob(ctx, id, 10)
		return len(runs) == 1
	})

	run := runs[0]
	require.Equal(t, store.StatusOK, run.Status)
	require.True(t, run.ExitCode.Valid)
	require.EqualValues(t, 0, run.ExitCode.Int64)
	require.True(t, run.PID.Valid)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(out))

	var j *store.Job
	waitFor(t, 2*time.Second, func() bool {
		j, err = st.GetJob(ctx, id)
		require.NoError(t, err)
		return !j.Running && j.RunCount == 1
	})
	require.False(t, j.ClaimedBy.Valid)
	require.True(t, j.LastRunUTC.Valid)
	require.True(t, j.NextRunUTC.Valid)
	require.Equal(t, run.StartedUTC.Time.Add(60*time.Second), j.NextRunUTC.Time)

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case e := <-events:
			seen[e.Type] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("missing bus events, saw %v", seen)
		}
	}
	require.True(t, seen[eventbus.TypeRunStarted])
	require.True(t, seen[eventbus.TypeRunFinished])
}

func TestDispatchKillsOnTimeout(t *testing.T) {
	st, svc, _ := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "slow",
		ProgramPath:     "/bin/sleep",
		Args:            "30",
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: sql.NullInt64{Int64: 300, Valid: true},
		Timezone:        "UTC",
		Enabled:         true,
		TimeoutSeconds:  1,
	})
	require.NoError(t, err)
	require.NoError(t, st.Kick(ctx, id))

	startService(t, svc)

	var runs []store.Run
	waitFor(t, 10*time.Second, func() bool {
		runs, _ = st.RunsForJob(ctx, id, 10)
		return len(runs) == 1
	})
	require.Equal(t, store.StatusTimeout, runs[0].Status)
	require.True(t, runs[0].Message.Valid)

	took := runs[0].FinishedUTC.Time.Sub(runs[0].StartedUTC.Time)
	require.Less(t, took, 10*time.Second, "process should be killed near the 1s timeout")
}

func TestDispatchOnceJobIsTerminal(t *testing.T) {
	st, svc, _ := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	id, err := st.CreateJob(ctx, &store.Job{
		Name:         "one-shot",
		ProgramPath:  "/bin/true",
		ScheduleType: store.ScheduleOnce,
		OnceAtUTC:    store.UTC(time.Now().Add(-time.Hour)),
		Timezone:     "UTC",
		Enabled:      true,
	})
	require.NoError(t, err)

	startService(t, svc)

	waitFor(t, 5*time.Second, func() bool {
		j, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		return j.RunCount == 1 && !j.Running
	})

	// Several more poll cycles must not revive it.
	time.Sleep(300 * time.Millisecond)
	j, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 1, j.RunCount)
	require.False(t, j.NextRunUTC.Valid, "once job must stay terminal (NULL next_run)")

	runs, err := st.RunsForJob(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestDispatchOnceJobRearmedByFutureEdit(t *testing.T) {
	st, svc, _ := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	id, err := st.CreateJob(ctx, &store.Job{
		Name:         "replay",
		ProgramPath:  "/bin/true",
		ScheduleType: store.ScheduleOnce,
		OnceAtUTC:    store.UTC(time.Now().Add(-time.Hour)),
		Timezone:     "UTC",
		Enabled:      true,
	})
	require.NoError(t, err)

	startService(t, svc)

	waitFor(t, 5*time.Second, func() bool {
		j, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		return j.RunCount == 1 && !j.Running
	})

	// Pushing once_at_utc into the future again re-arms the job; the
	// edit clears next_run_utc and the refresh phase fills it back in.
	future := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	j, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	j.OnceAtUTC = store.UTC(future)
	require.NoError(t, st.UpdateJob(ctx, j))

	waitFor(t, 5*time.Second, func() bool {
		j, err = st.GetJob(ctx, id)
		require.NoError(t, err)
		return j.NextRunUTC.Valid
	})
	require.Equal(t, future, j.NextRunUTC.Time)
	require.EqualValues(t, 1, j.RunCount, "re-arming schedules, it does not run early")
}

func TestDispatchNoOverlapSingleInstance(t *testing.T) {
	st, svc, _ := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	// Due every second but takes two; no_overlap must keep it to one
	// instance at a time.
	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "overlapper",
		ProgramPath:     "/bin/sleep",
		Args:            "2",
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: sql.NullInt64{Int64: 1, Valid: true},
		Timezone:        "UTC",
		Enabled:         true,
		NoOverlap:       true,
	})
	require.NoError(t, err)
	require.NoError(t, st.Kick(ctx, id))

	startService(t, svc)

	waitFor(t, 5*time.Second, func() bool {
		j, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		return j.Running
	})

	// While the first instance sleeps, no second run may start.
	time.Sleep(500 * time.Millisecond)
	runs, err := st.RunsForJob(ctx, id, 10)
	require.NoError(t, err)
	require.Empty(t, runs, "no run recorded until the first instance finishes")
	require.EqualValues(t, 1, svc.InFlight())
}

func TestDispatchRecordsFailure(t *testing.T) {
	st, svc, _ := newTestService(t, 50*time.Millisecond)
	ctx := context.Background()

	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "fails",
		ProgramPath:     "/bin/false",
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: sql.NullInt64{Int64: 600, Valid: true},
		Timezone:        "UTC",
		Enabled:         true,
	})
	require.NoError(t, err)
	require.NoError(t, st.Kick(ctx, id))

	startService(t, svc)

	var runs []store.Run
	waitFor(t, 5*time.Second, func() bool {
		runs, _ = st.RunsForJob(ctx, id, 10)
		return len(runs) == 1
	})
	require.Equal(t, store.StatusError, runs[0].Status)
	require.True(t, runs[0].ExitCode.Valid)
	require.EqualValues(t, 1, runs[0].ExitCode.Int64)

	var j *store.Job
	waitFor(t, 2*time.Second, func() bool {
		j, err = st.GetJob(ctx, id)
		require.NoError(t, err)
		return j.RunCount == 1
	})
	require.True(t, j.LastExitCode.Valid)
	require.EqualValues(t, 1, j.LastExitCode.Int64)
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()
	env, err := mergeEnv(store.NullString(`{"NUTS_MODE":"weekly"}`))
	require.NoError(t, err)
	require.Contains(t, env, "NUTS_MODE=weekly")

	env, err = mergeEnv(sql.NullString{})
	require.NoError(t, err)
	require.NotEmpty(t, env)

	_, err = mergeEnv(store.NullString(`["not","a","map"]`))
	require.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	t.Parallel()
	tb := &tailBuffer{limit: 8}
	_, _ = tb.Write([]byte("0123456789abcdef"))
	require.Equal(t, "89abcdef", tb.tailString())
}
