package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchEnqueuesToExistingRuntime(t *testing.T) {
	m := New(nil, nil)
	rt := m.newChannelRuntime("orders")
	m.runtimes["orders"] = rt

	m.dispatch(context.Background(), "orders", "payload", 42)

	select {
	case ev := <-rt.queue:
		assert.Equal(t, "orders", ev.channel)
		assert.Equal(t, "payload", ev.payload)
		assert.EqualValues(t, 42, ev.backendPID)
	default:
		t.Fatal("expected event to be enqueued")
	}
}

func TestDispatchBuffersWhenNoRuntimeExists(t *testing.T) {
	cfg := defaultConfig()
	cfg.PendingAfterDisconnect = 2
	m := New(nil, &cfg)

	m.dispatch(context.Background(), "orders", "p1", 1)
	m.dispatch(context.Background(), "orders", "p2", 2)
	m.dispatch(context.Background(), "orders", "p3", 3)

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	require.Len(t, m.pending, 2)
	assert.Equal(t, "p2", m.pending[0].payload)
	assert.Equal(t, "p3", m.pending[1].payload)
}

func TestDispatchZeroPendingCapacityDropsEverything(t *testing.T) {
	cfg := defaultConfig()
	cfg.PendingAfterDisconnect = 0
	m := New(nil, &cfg)

	m.dispatch(context.Background(), "orders", "p1", 1)

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	assert.Empty(t, m.pending)
}

func TestReplayPendingRedispatchesAndClears(t *testing.T) {
	m := New(nil, nil)
	rt := m.newChannelRuntime("orders")
	m.runtimes["orders"] = rt
	m.pending = []event{{channel: "orders", payload: "late", backendPID: 7}}

	m.replayPending(context.Background())

	m.pendingMu.Lock()
	assert.Empty(t, m.pending)
	m.pendingMu.Unlock()

	select {
	case ev := <-rt.queue:
		assert.Equal(t, "late", ev.payload)
	default:
		t.Fatal("expected replayed event to reach the runtime queue")
	}
}

func TestMatchingHandlersIncludesWildcardMatches(t *testing.T) {
	m := New(nil, nil)
	m.wildcardMap["orders.*"] = []handlerEntry{{id: 1, fn: func(ctx context.Context, channel, payload string, pid uint32) {}}}

	handlers := m.matchingHandlers("orders.created")
	require.Len(t, handlers, 1)
	assert.EqualValues(t, 1, handlers[0].id)
}

func TestMatchingHandlersExcludesUnrelatedWildcard(t *testing.T) {
	m := New(nil, nil)
	m.wildcardMap["billing.*"] = []handlerEntry{{id: 1, fn: func(ctx context.Context, channel, payload string, pid uint32) {}}}

	assert.Empty(t, m.matchingHandlers("orders.created"))
}

func TestMatchingHandlersCombinesExactAndWildcard(t *testing.T) {
	m := New(nil, nil)
	m.exactMap["orders.created"] = []handlerEntry{{id: 1, fn: func(ctx context.Context, channel, payload string, pid uint32) {}}}
	m.wildcardMap["orders.*"] = []handlerEntry{{id: 2, fn: func(ctx context.Context, channel, payload string, pid uint32) {}}}

	assert.Len(t, m.matchingHandlers("orders.created"), 2)
}

func TestRunChannelWorkerFansOutThroughRateLimitAndWildcard(t *testing.T) {
	m := New(nil, nil)
	rt := m.newChannelRuntime("orders.created")
	m.runtimes["orders.created"] = rt

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	record := func(tag string) HandlerFunc {
		return func(ctx context.Context, channel, payload string, pid uint32) {
			mu.Lock()
			seen = append(seen, tag)
			mu.Unlock()
			done <- struct{}{}
		}
	}
	m.exactMap["orders.created"] = []handlerEntry{{id: 1, fn: record("exact")}}
	m.wildcardMap["orders.*"] = []handlerEntry{{id: 2, fn: record("wildcard")}}

	go m.runChannelWorker(rt)
	rt.queue <- event{channel: "orders.created", payload: "p", backendPID: 1}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler never ran")
		}
	}
	close(rt.queue)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"exact", "wildcard"}, seen)
}

func TestEnqueueDropsOverflowWhenQueueFull(t *testing.T) {
	rt := &channelRuntime{channel: "orders", queue: make(chan event, 1)}
	enqueue(rt, event{channel: "orders", payload: "a"})
	enqueue(rt, event{channel: "orders", payload: "b"})
	assert.EqualValues(t, 1, rt.dropOverflow.Load())
}

func TestAllowRateWithinLimit(t *testing.T) {
	rt := &channelRuntime{rateWindow: time.Now()}
	assert.True(t, allowRate(rt, 2))
	assert.True(t, allowRate(rt, 2))
	assert.False(t, allowRate(rt, 2))
}

func TestAllowRateZeroMeansUnlimited(t *testing.T) {
	rt := &channelRuntime{}
	for i := 0; i < 100; i++ {
		assert.True(t, allowRate(rt, 0))
	}
}

func TestAllowDepthGuardsRecursion(t *testing.T) {
	rt := &channelRuntime{depth: make(map[string]int)}
	assert.True(t, allowDepth(rt, "k", 1))
	assert.False(t, allowDepth(rt, "k", 1))
	releaseDepth(rt, "k")
	assert.True(t, allowDepth(rt, "k", 1))
}

func TestWildcardPrefixStripsTrailingStar(t *testing.T) {
	assert.Equal(t, "orders.", wildcardPrefix("orders.*"))
}

func TestIsWildcardDetectsSuffix(t *testing.T) {
	assert.True(t, isWildcard("orders.*"))
	assert.False(t, isWildcard("orders"))
}
