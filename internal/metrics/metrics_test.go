package metrics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampleOwnProcess(t *testing.T) {
	c := NewCollector(time.Second)
	targets := []Target{{AppID: 1, Name: "self", PID: os.Getpid()}}

	samples := c.Sample(targets)
	require.Len(t, samples, 1)
	require.Equal(t, int64(1), samples[0].AppID)
	require.False(t, samples[0].SampledAt.IsZero())
}

func TestSampleSkipsNonPositivePID(t *testing.T) {
	c := NewCollector(time.Second)
	samples := c.Sample([]Target{{AppID: 1, Name: "self", PID: 0}})
	require.Empty(t, samples)
}

func TestSampleDropsStaleHandles(t *testing.T) {
	c := NewCollector(time.Second)
	c.Sample([]Target{{AppID: 1, Name: "self", PID: os.Getpid()}})
	require.Len(t, c.handles, 1)

	c.Sample(nil)
	require.Empty(t, c.handles)
}

func TestForgetClearsHandle(t *testing.T) {
	c := NewCollector(time.Second)
	c.Sample([]Target{{AppID: 1, Name: "self", PID: os.Getpid()}})
	c.Forget(1, "self")
	require.Empty(t, c.handles)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := NewCollector(10 * time.Millisecond)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c.Run(ctx, func() []Target { return nil }, nil)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
