package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRefresher_RunsJobs(t *testing.T) {
	r := New(4, 2, time.Second, zap.NewNop())

	var runs atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, r.Enqueue(Job{Key: key, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}))
	}
	r.Close()
	assert.Equal(t, int32(3), runs.Load())
}

func TestRefresher_DedupsInFlightKeys(t *testing.T) {
	r := New(4, 1, time.Second, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	var runs atomic.Int32
	job := Job{Key: "same", Run: func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	}}

	assert.True(t, r.Enqueue(job))
	<-started
	assert.False(t, r.Enqueue(job))
	close(release)
	r.Close()
	assert.Equal(t, int32(1), runs.Load())

	// the key is free again once the job finished
	_, busy := r.inFly.Load("same")
	assert.False(t, busy)
}

func TestRefresher_DropsWhenSaturated(t *testing.T) {
	r := New(1, 1, time.Second, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	block := func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	assert.True(t, r.Enqueue(Job{Key: "running", Run: block}))
	<-started
	assert.True(t, r.Enqueue(Job{Key: "queued", Run: func(context.Context) error { return nil }}))
	assert.False(t, r.Enqueue(Job{Key: "dropped", Run: func(context.Context) error { return nil }}))

	close(release)
	r.Close()
}

func TestRefresher_JobGetsDeadline(t *testing.T) {
	r := New(1, 1, 20*time.Millisecond, zap.NewNop())
	errCh := make(chan error, 1)
	r.Enqueue(Job{Key: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}})
	r.Close()
	assert.True(t, errors.Is(<-errCh, context.DeadlineExceeded))
}

func TestRefresher_RejectsEmptyJob(t *testing.T) {
	r := New(1, 1, time.Second, zap.NewNop())
	defer r.Close()
	assert.False(t, r.Enqueue(Job{Key: "nil"}))
}

func TestRefresher_RejectsAfterClose(t *testing.T) {
	r := New(1, 1, 0, nil)
	r.Close()

	var ran atomic.Bool
	assert.NotPanics(t, func() {
		assert.False(t, r.Enqueue(Job{Key: "late", Run: func(context.Context) error {
			ran.Store(true)
			return nil
		}}))
	})
	assert.False(t, ran.Load())
	_, busy := r.inFly.Load("late")
	assert.False(t, busy)

	assert.NotPanics(t, r.Close)
}
