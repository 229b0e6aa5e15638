// Package network tracks whether the backend is reachable and tells
// subscribers when that changes.
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/example/learnsync/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultMaxListeners = 64
)

// Listener is called with the new connectivity state
type Listener func(online bool)

type subscription struct {
	id int
	fn Listener
}

// delivery is one state handed to a fixed set of listeners
type delivery struct {
	online bool
	subs   []subscription
}

// Monitor holds the last known connectivity state
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	listeners   []subscription
	nextID      int
	pending     []delivery
	dispatching bool

	probeURL     string
	probeTimeout time.Duration
	maxListeners int
	client       *http.Client
	logger       logrus.FieldLogger
}

type Option func(*Monitor)

func WithProbeURL(u string) Option {
	return func(m *Monitor) { m.probeURL = u }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

func WithMaxListeners(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxListeners = n
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor that starts in the given state
func NewMonitor(initial bool, opts ...Option) *Monitor {
	m := &Monitor{
		online:       initial,
		probeTimeout: DefaultProbeTimeout,
		maxListeners: DefaultMaxListeners,
		client:       &http.Client{},
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online returns the last known state
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers fn and calls it once with the current state, then on
// every transition. The returned func removes the listener and may be called
// more than once.
//
// Listeners run without any monitor lock held and may call Subscribe, Report
// or Probe. Deliveries are queued and handed out one at a time in order by
// whichever caller is already dispatching, so a call made from inside a
// listener, or concurrently with a dispatch, can return before its own
// deliveries have run.
func (m *Monitor) Subscribe(fn Listener) (func(), error) {
	m.mu.Lock()
	if len(m.listeners) >= m.maxListeners {
		m.mu.Unlock()
		return nil, models.ErrTooManyListeners
	}
	id := m.nextID
	m.nextID++
	sub := subscription{id: id, fn: fn}
	m.listeners = append(m.listeners, sub)
	m.pending = append(m.pending, delivery{online: m.online, subs: []subscription{sub}})
	m.dispatchLocked()

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(id) })
	}, nil
}

func (m *Monitor) remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.listeners {
		if s.id == id {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Monitor) subscribed(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.listeners {
		if s.id == id {
			return true
		}
	}
	return false
}

// Report records a connectivity signal and notifies listeners when the state
// actually changed.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]subscription, len(m.listeners))
	copy(subs, m.listeners)
	m.pending = append(m.pending, delivery{online: online, subs: subs})
	m.logger.WithField("online", online).Info("connectivity changed")
	m.dispatchLocked()
}

// dispatchLocked drains pending deliveries unless another call is already
// doing so. It must be called with mu held and releases it.
func (m *Monitor) dispatchLocked() {
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.pending) > 0 {
		d := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		for _, s := range d.subs {
			// skip listeners removed after the delivery was queued
			if m.subscribed(s.id) {
				m.invoke(s.fn, d.online)
			}
		}

		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}

func (m *Monitor) invoke(fn Listener, online bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", r).Error("network listener panicked")
		}
	}()
	fn(online)
}

// Probe checks reachability with a HEAD request to the probe URL and reports
// the outcome. Without a probe URL it returns the current state.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.probeURL == "" {
		return m.Online()
	}
	online := m.head(ctx)
	m.Report(online)
	return online
}

func (m *Monitor) head(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.WithError(err).Warn("invalid probe url")
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.WithError(err).Debug("connectivity probe failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Start runs the initial probe
func (m *Monitor) Start(ctx context.Context) {
	online := m.Probe(ctx)
	m.logger.WithField("online", online).Info("network monitor started")
}
