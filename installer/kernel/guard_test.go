package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKiller struct {
	matched int
	err     error
	names   []string
}

func (f *fakeKiller) KillByName(_ context.Context, name string) (int, error) {
	f.names = append(f.names, name)
	return f.matched, f.err
}

func newTestGuard(k ProcessKiller, slept *[]time.Duration) *RunningInstanceGuard {
	g := NewRunningInstanceGuard(k, 2*time.Second, nullLogger())
	g.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return g
}

func TestEnsureStoppedNoInstance(t *testing.T) {
	var slept []time.Duration
	k := &fakeKiller{}
	require.NoError(t, newTestGuard(k, &slept).EnsureStopped(context.Background(), "webapp.exe"))
	assert.Equal(t, []string{"webapp.exe"}, k.names)
	assert.Empty(t, slept)
}

func TestEnsureStoppedWaitsGracePeriod(t *testing.T) {
	var slept []time.Duration
	k := &fakeKiller{matched: 2}
	require.NoError(t, newTestGuard(k, &slept).EnsureStopped(context.Background(), "webapp.exe"))
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestEnsureStoppedReportsKillFailure(t *testing.T) {
	var slept []time.Duration
	denied := errors.New("access denied")
	k := &fakeKiller{matched: 1, err: denied}
	err := newTestGuard(k, &slept).EnsureStopped(context.Background(), "webapp.exe")
	assert.ErrorIs(t, err, denied)
	assert.Len(t, slept, 1)
}

func TestSleepCtxHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestProcessKillerNoMatch(t *testing.T) {
	n, err := NewProcessKiller().KillByName(context.Background(), "no-such-process-4f1c2e.exe")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDefaultGuardSettings(t *testing.T) {
	g := NewRunningInstanceGuard(&fakeKiller{}, 0, nullLogger())
	assert.Equal(t, DefaultGracePeriod, g.grace)
}
