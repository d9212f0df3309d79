package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingProcessor struct {
	calls atomic.Int64
}

func (p *countingProcessor) ProcessJobs(context.Context) error {
	p.calls.Add(1)
	return nil
}

func TestWorker_ProcessesOnInterval(t *testing.T) {
	processor := &countingProcessor{}
	worker := NewWorker("test", processor, 10*time.Millisecond)

	go worker.Start(context.Background())

	assert.Eventually(t, func() bool {
		return processor.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	worker.Stop()
}

func TestWorker_StopWaitsForLoopExit(t *testing.T) {
	processor := &countingProcessor{}
	worker := NewWorker("test", processor, 5*time.Millisecond)

	go worker.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	worker.Stop()

	settled := processor.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, processor.calls.Load(), "no ticks may run after Stop returns")
}

func TestWorker_ContextCancelStopsLoop(t *testing.T) {
	processor := &countingProcessor{}
	worker := NewWorker("test", processor, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
}
