// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

package offline

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Blaqmann/ehr-system/internal/backoff"
)

// Primitive is the host connectivity source the monitor is built on: a
// current boolean state plus a subscription for transition events.
type Primitive interface {
	Online() bool
	// Subscribe registers fn for state changes and returns an unsubscribe
	// function. Implementations may deliver duplicate identical states; the
	// monitor debounces them.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Monitor tracks online/offline transitions and raises edge-triggered
// became-online / became-offline callbacks. Duplicate identical transitions
// from the primitive are collapsed.
type Monitor struct {
	logger      *slog.Logger
	unsubscribe func()

	mu     sync.Mutex
	online bool
	onUp   []func()
	onDown []func()
}

// NewMonitor creates a monitor seeded with the primitive's current state and
// subscribed to its transitions.
func NewMonitor(p Primitive, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		logger: logger,
		online: p.Online(),
	}
	m.unsubscribe = p.Subscribe(m.transition)
	return m
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnBecameOnline registers a callback for offline->online edges.
func (m *Monitor) OnBecameOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUp = append(m.onUp, fn)
}

// OnBecameOffline registers a callback for online->offline edges.
func (m *Monitor) OnBecameOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDown = append(m.onDown, fn)
}

// Close detaches the monitor from its primitive. Registered callbacks fire
// no more after Close returns.
func (m *Monitor) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var fns []func()
	if online {
		fns = append(fns, m.onUp...)
	} else {
		fns = append(fns, m.onDown...)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity transition", "online", online)
	for _, fn := range fns {
		fn()
	}
}

// HTTPProbe is a Primitive that derives connectivity from periodic GET
// requests against a health endpoint. While the endpoint is unreachable the
// probe interval backs off with jitter instead of hammering the network.
type HTTPProbe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	backoff  *backoff.Backoff

	mu      sync.Mutex
	online  bool
	nextSub int
	subs    map[int]func(online bool)
}

// NewHTTPProbe creates a probe against url polled every interval. The probe
// starts offline until the first successful check; call Start to begin
// polling.
func NewHTTPProbe(url string, interval time.Duration, logger *slog.Logger) *HTTPProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProbe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		backoff:  backoff.New(interval, 10*interval, 2.0),
		subs:     make(map[int]func(online bool)),
	}
}

// Online reports the probe's last observed state.
func (p *HTTPProbe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe implements Primitive.
func (p *HTTPProbe) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Start runs the polling loop until ctx is cancelled.
func (p *HTTPProbe) Start(ctx context.Context) {
	for {
		online := p.check(ctx)
		p.publish(online)

		wait := p.interval
		if !online {
			wait = p.backoff.Next()
		} else {
			p.backoff.Reset()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// CheckNow performs one probe immediately and publishes the result. It backs
// the user-initiated "retry" action.
func (p *HTTPProbe) CheckNow(ctx context.Context) bool {
	online := p.check(ctx)
	p.publish(online)
	return online
}

func (p *HTTPProbe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (p *HTTPProbe) publish(online bool) {
	p.mu.Lock()
	changed := online != p.online
	p.online = online
	var fns []func(bool)
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Debug("connectivity probe state changed", "online", online, "url", p.url)
	for _, fn := range fns {
		fn(online)
	}
}
