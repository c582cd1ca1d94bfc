// Package notify implements component C5: a
// notification multiplexer that fans a single dedicated connection out
// to many named channels (including wildcard patterns), with per-channel
// bounded queues, rate limiting, recursion protection, and transparent
// reconnection with resubscription.
//
// Grounded on erlorenz-go-toolbox/pubsub/postgres.go's topicListener
// (dedicated LISTEN connection, per-topic handler fan-out) generalized to
// wildcard matching, bounded queues, and reconnect/backoff.
package notify

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Usub-development/upq/wire"
)

// HandlerFunc is the callback invoked for each delivered notification.
// one method (channel, payload, pid) -> task<void>. Handlers execute as
// their own goroutines so a slow handler never starves the read loop.
type HandlerFunc func(ctx context.Context, channel, payload string, backendPID uint32)

// HandlerHandle identifies one subscription, returned from AddHandler.
type HandlerHandle struct {
	id       uint64
	channel  string
	wildcard bool
}

type handlerEntry struct {
	id uint64
	fn HandlerFunc
}

// Config tunes the multiplexer's bounded queues and backoff.
type Config struct {
	QueueCapacity          int
	RateLimitPerSec        int
	MaxRecursiveDepth      int
	ReconnectBackoff       time.Duration
	PendingAfterDisconnect int
}

func defaultConfig() Config {
	return Config{
		QueueCapacity:          256,
		RateLimitPerSec:        1000,
		MaxRecursiveDepth:      8,
		ReconnectBackoff:       time.Second,
		PendingAfterDisconnect: 1024,
	}
}

// Stats are the sum of every channel's drop counters.
type Stats struct {
	DroppedRateLimited int64
	DroppedOverflow    int64
	DroppedRecursive   int64
}

type event struct {
	channel    string
	payload    string
	backendPID uint32
}

type channelRuntime struct {
	channel string
	queue   chan event
	cancel  context.CancelFunc

	dropRateLimited atomic.Int64
	dropOverflow    atomic.Int64
	dropRecursive   atomic.Int64

	rateMu     sync.Mutex
	rateWindow time.Time
	rateCount  int

	depthMu sync.Mutex
	depth   map[string]int // channel+payload -> recursion depth, per-task
}

// Multiplexer is the notify state
type Multiplexer struct {
	cfg  Config
	conn *wire.Config

	mu          sync.Mutex
	w           *wire.Conn
	exactMap    map[string][]handlerEntry
	wildcardMap map[string][]handlerEntry
	runtimes    map[string]*channelRuntime

	pendingMu sync.Mutex
	pending   []event

	handlerIDSeq atomic.Uint64
}

// New builds a multiplexer over its own dedicated connection parameters.
// The dedicated connection is established lazily by Run.
func New(cfg *wire.Config, mcfg *Config) *Multiplexer {
	c := defaultConfig()
	if mcfg != nil {
		c = *mcfg
	}
	return &Multiplexer{
		cfg:         c,
		conn:        cfg,
		exactMap:    make(map[string][]handlerEntry),
		wildcardMap: make(map[string][]handlerEntry),
		runtimes:    make(map[string]*channelRuntime),
	}
}

// isWildcard reports whether channel ends in ".*", the multiplexer's
// wildcard subscription suffix.
func isWildcard(channel string) bool {
	return strings.HasSuffix(channel, ".*")
}

func wildcardPrefix(channel string) string {
	return strings.TrimSuffix(channel, "*")
}

// AddHandler registers a handler. If channel is not a wildcard and this
// is the first handler for it, issues LISTEN, creates the channel
// runtime, and spawns its worker. Returns nil on LISTEN failure,
// matching the nil-on-failure convention used throughout this package.
func (m *Multiplexer) AddHandler(ctx context.Context, channel string, fn HandlerFunc) *HandlerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.handlerIDSeq.Add(1)
	wildcard := isWildcard(channel)

	if wildcard {
		m.wildcardMap[channel] = append(m.wildcardMap[channel], handlerEntry{id: id, fn: fn})
		return &HandlerHandle{id: id, channel: channel, wildcard: true}
	}

	first := len(m.exactMap[channel]) == 0
	if first {
		if m.w != nil {
			if err := m.w.Listen(ctx, channel); err != nil {
				return nil
			}
		}
		m.runtimes[channel] = m.newChannelRuntime(channel)
		go m.runChannelWorker(m.runtimes[channel])
	}

	m.exactMap[channel] = append(m.exactMap[channel], handlerEntry{id: id, fn: fn})
	return &HandlerHandle{id: id, channel: channel, wildcard: false}
}

func (m *Multiplexer) newChannelRuntime(channel string) *channelRuntime {
	return &channelRuntime{
		channel: channel,
		queue:   make(chan event, m.cfg.QueueCapacity),
		depth:   make(map[string]int),
	}
}

// RemoveHandler removes one handler. If the channel's handler list
// becomes empty, issues UNLISTEN and tears down the runtime.
func (m *Multiplexer) RemoveHandler(ctx context.Context, h *HandlerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.wildcard {
		m.wildcardMap[h.channel] = removeByID(m.wildcardMap[h.channel], h.id)
		return nil
	}

	m.exactMap[h.channel] = removeByID(m.exactMap[h.channel], h.id)
	if len(m.exactMap[h.channel]) == 0 {
		delete(m.exactMap, h.channel)
		if rt, ok := m.runtimes[h.channel]; ok {
			close(rt.queue)
			delete(m.runtimes, h.channel)
		}
		if m.w != nil {
			return m.w.Unlisten(ctx, h.channel)
		}
	}
	return nil
}

func removeByID(list []handlerEntry, id uint64) []handlerEntry {
	out := list[:0]
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// RemoveChannel removes all handlers for a channel (UNLISTEN for exact
// channels).
func (m *Multiplexer) RemoveChannel(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isWildcard(channel) {
		delete(m.wildcardMap, channel)
		return nil
	}

	delete(m.exactMap, channel)
	if rt, ok := m.runtimes[channel]; ok {
		close(rt.queue)
		delete(m.runtimes, channel)
	}
	if m.w != nil {
		return m.w.Unlisten(ctx, channel)
	}
	return nil
}

// Stats sums every channel's drop counters.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, rt := range m.runtimes {
		s.DroppedRateLimited += rt.dropRateLimited.Load()
		s.DroppedOverflow += rt.dropOverflow.Load()
		s.DroppedRecursive += rt.dropRecursive.Load()
	}
	return s
}
