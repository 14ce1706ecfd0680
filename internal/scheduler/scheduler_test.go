package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	calls atomic.Int32
	err   error
}

func (f *fakeResetter) ResetSubscriptions(context.Context) (int, error) {
	f.calls.Add(1)
	return 3, f.err
}

type fakeSweeper struct{ calls atomic.Int32 }

func (f *fakeSweeper) Sweep(context.Context) { f.calls.Add(1) }

func TestNext_MonthlyReset(t *testing.T) {
	from := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	next, err := Next("0 0 1 * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestNext_Invalid(t *testing.T) {
	_, err := Next("every tuesday", time.Now())
	assert.Error(t, err)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("61 * * * *", &fakeResetter{}, nil, time.UTC)
	assert.ErrorContains(t, err, "invalid subscription reset schedule")
}

func TestNew_RegistersJobs(t *testing.T) {
	s, err := New("0 0 1 * *", &fakeResetter{}, &fakeSweeper{}, time.UTC)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s, err = New("0 0 1 * *", nil, &fakeSweeper{}, time.UTC)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestJobs(t *testing.T) {
	r := &fakeResetter{}
	runReset(r)
	r.err = errors.New("notion down")
	runReset(r)
	assert.Equal(t, int32(2), r.calls.Load())

	sw := &fakeSweeper{}
	runSweep(sw)
	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestStartStop(t *testing.T) {
	s, err := New("0 0 1 * *", &fakeResetter{}, &fakeSweeper{}, time.UTC)
	require.NoError(t, err)

	s.Start()
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
