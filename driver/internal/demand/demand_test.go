package demand

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keerthikanthn/streambridge/streams"
)

func TestGateAcquireClaimsRequestedDemand(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(2)

	ctx := context.Background()
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Acquire(short), context.DeadlineExceeded, "demand is spent")
}

func TestGateIgnoresNonPositiveDemand(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(0)
	gate.Request(-3)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Acquire(short), context.DeadlineExceeded)
}

func TestGateDemandAccumulates(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(1)
	gate.Request(1)

	ctx := context.Background()
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))
}

func TestGateUnboundedNeverDecrements(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(streams.Unbounded)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, gate.Acquire(ctx))
	}
}

func TestGateSaturatesAtUnbounded(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(streams.Unbounded - 1)
	gate.Request(streams.Unbounded - 1)

	// without saturation the second request would overflow demand negative
	// and Acquire would block
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, gate.Acquire(ctx))
	}
}

func TestGateAcquireBlocksUntilRequest(t *testing.T) {
	gate := NewGate(nil)
	got := make(chan error, 1)
	go func() { got <- gate.Acquire(context.Background()) }()

	select {
	case err := <-got:
		t.Fatalf("acquire returned before any demand: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	gate.Request(1)
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe new demand")
	}
}

func TestGateCancelReleasesAcquire(t *testing.T) {
	gate := NewGate(nil)
	got := make(chan error, 1)
	go func() { got <- gate.Acquire(context.Background()) }()

	gate.Cancel()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe the cancellation")
	}
}

func TestGateCancelRunsTeardownOnce(t *testing.T) {
	var teardowns atomic.Int64
	gate := NewGate(func() { teardowns.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Cancel()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), teardowns.Load())
	assert.True(t, gate.Cancelled())
	select {
	case <-gate.Done():
	default:
		t.Fatal("done channel is not closed after cancel")
	}
}

func TestGateAcquireAfterCancel(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(5)
	gate.Cancel()

	assert.ErrorIs(t, gate.Acquire(context.Background()), ErrCancelled, "cancellation wins over remaining demand")
}

func TestGateAcquirePrefersDemandOverContext(t *testing.T) {
	gate := NewGate(nil)
	gate.Request(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, gate.Acquire(ctx), "available demand is claimed even when ctx has ended")
	assert.ErrorIs(t, gate.Acquire(ctx), context.Canceled)
}

type refusedSubscriber struct {
	sub  streams.Subscription
	errs []error
}

func (r *refusedSubscriber) OnSubscribe(sub streams.Subscription) { r.sub = sub }
func (r *refusedSubscriber) OnNext(*streams.Message) error        { return nil }
func (r *refusedSubscriber) OnError(err error)                    { r.errs = append(r.errs, err) }
func (r *refusedSubscriber) OnComplete()                          {}

func TestRefuse(t *testing.T) {
	sub := &refusedSubscriber{}
	refuseErr := errors.New("driver busy")

	Refuse(sub, refuseErr)

	require.NotNil(t, sub.sub, "the subscribe protocol completes before the error")
	assert.Equal(t, []error{refuseErr}, sub.errs)

	// the handed-out subscription is inert but safe to use
	sub.sub.Request(1)
	sub.sub.Cancel()
	gate, ok := sub.sub.(*Gate)
	require.True(t, ok)
	assert.ErrorIs(t, gate.Acquire(context.Background()), ErrCancelled)
}
