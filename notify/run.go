package notify

import (
	"context"
	"strings"
	"time"

	"github.com/Usub-development/upq/wire"
)

// Run owns the dedicated connection's lifecycle: connect, replay LISTEN
// for every registered exact channel, read notifications until the
// connection dies, then reconnect with backoff and resubscribe. Run
// blocks until ctx is cancelled.
func (m *Multiplexer) Run(ctx context.Context) error {
	backoff := m.cfg.ReconnectBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w, err := wire.ConnectAsync(ctx, m.conn)
		if err != nil {
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}

		m.mu.Lock()
		m.w = w
		channels := make([]string, 0, len(m.exactMap))
		for ch := range m.exactMap {
			channels = append(channels, ch)
		}
		m.mu.Unlock()

		resubscribeFailed := false
		for _, ch := range channels {
			if err := w.Listen(ctx, ch); err != nil {
				resubscribeFailed = true
				break
			}
		}
		if resubscribeFailed {
			w.Close()
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			continue
		}

		m.replayPending(ctx)
		backoff = m.cfg.ReconnectBackoff

		m.readLoop(ctx, w)

		m.mu.Lock()
		m.w = nil
		m.mu.Unlock()
		w.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop drains notifications until the connection dies or ctx ends.
func (m *Multiplexer) readLoop(ctx context.Context, w *wire.Conn) {
	for {
		if err := w.WaitReadableForListener(ctx); err != nil {
			return
		}
		notes, err := w.DrainNotifications(ctx)
		if err != nil {
			return
		}
		for _, n := range notes {
			m.dispatch(ctx, n.Channel, n.Payload, n.BackendPID)
		}
	}
}

// dispatch enqueues one notification onto the channel's bounded queue,
// where runChannelWorker fans it out to every matching exact and
// wildcard handler. No runtime exists for channel when AddHandler
// hasn't yet caught up with a replayed LISTEN (or lost the race with
// RemoveChannel); such events are buffered in m.pending up to
// PendingAfterDisconnect, oldest dropped first, and redelivered by the
// next replayPending.
func (m *Multiplexer) dispatch(ctx context.Context, channel, payload string, pid uint32) {
	m.mu.Lock()
	rt, ok := m.runtimes[channel]
	m.mu.Unlock()

	if ok {
		enqueue(rt, event{channel: channel, payload: payload, backendPID: pid})
	} else {
		m.bufferPending(event{channel: channel, payload: payload, backendPID: pid})
	}
}

// matchingHandlers returns every exact handler registered for channel
// plus every wildcard handler whose prefix matches it, so both go
// through the same rate limit and recursion-depth guard in
// runChannelWorker instead of wildcard handlers bypassing them.
func (m *Multiplexer) matchingHandlers(channel string) []handlerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := append([]handlerEntry(nil), m.exactMap[channel]...)
	for prefix, entries := range m.wildcardMap {
		if strings.HasPrefix(channel, wildcardPrefix(prefix)) {
			handlers = append(handlers, entries...)
		}
	}
	return handlers
}

func enqueue(rt *channelRuntime, ev event) {
	select {
	case rt.queue <- ev:
	default:
		rt.dropOverflow.Add(1)
	}
}

// bufferPending appends ev to the pending deque, dropping the oldest
// entry first once it reaches PendingAfterDisconnect capacity.
func (m *Multiplexer) bufferPending(ev event) {
	limit := m.cfg.PendingAfterDisconnect
	if limit <= 0 {
		return
	}
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if len(m.pending) >= limit {
		m.pending = m.pending[1:]
	}
	m.pending = append(m.pending, ev)
}

// replayPending redispatches the events dispatch buffered because no
// channel runtime existed for them; an event whose channel still has no
// runtime is buffered again.
func (m *Multiplexer) replayPending(ctx context.Context) {
	m.pendingMu.Lock()
	buffered := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	for _, ev := range buffered {
		m.dispatch(ctx, ev.channel, ev.payload, ev.backendPID)
	}
}

// runChannelWorker drains one channel's bounded queue, applying the
// sliding 1-second rate limit and per-payload recursion-depth guard
// before invoking every matching exact and wildcard handler as its own
// goroutine.
func (m *Multiplexer) runChannelWorker(rt *channelRuntime) {
	for ev := range rt.queue {
		if !allowRate(rt, m.cfg.RateLimitPerSec) {
			rt.dropRateLimited.Add(1)
			continue
		}

		key := ev.channel + "\x00" + ev.payload
		if !allowDepth(rt, key, m.cfg.MaxRecursiveDepth) {
			rt.dropRecursive.Add(1)
			continue
		}

		handlers := m.matchingHandlers(ev.channel)

		for _, h := range handlers {
			go func(fn HandlerFunc) {
				defer releaseDepth(rt, key)
				fn(context.Background(), ev.channel, ev.payload, ev.backendPID)
			}(h.fn)
		}
		if len(handlers) == 0 {
			releaseDepth(rt, key)
		}
	}
}

func allowRate(rt *channelRuntime, limitPerSec int) bool {
	if limitPerSec <= 0 {
		return true
	}
	rt.rateMu.Lock()
	defer rt.rateMu.Unlock()

	now := time.Now()
	if now.Sub(rt.rateWindow) >= time.Second {
		rt.rateWindow = now
		rt.rateCount = 0
	}
	if rt.rateCount >= limitPerSec {
		return false
	}
	rt.rateCount++
	return true
}

func allowDepth(rt *channelRuntime, key string, max int) bool {
	if max <= 0 {
		return true
	}
	rt.depthMu.Lock()
	defer rt.depthMu.Unlock()
	if rt.depth[key] >= max {
		return false
	}
	rt.depth[key]++
	return true
}

func releaseDepth(rt *channelRuntime, key string) {
	rt.depthMu.Lock()
	defer rt.depthMu.Unlock()
	rt.depth[key]--
	if rt.depth[key] <= 0 {
		delete(rt.depth, key)
	}
}
