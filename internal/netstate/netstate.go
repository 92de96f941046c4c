// Package netstate tracks whether the remote store is reachable.
package netstate

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Defaults for DialProber.
const (
	DefaultAddr    = "www.googleapis.com:443"
	DefaultTimeout = 3 * time.Second
)

// Prober performs one reachability check.
type Prober interface {
	Probe(ctx context.Context) error
}

// DialProber considers the network up when a TCP connection to Addr
// succeeds.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

// Probe implements Prober.
func (p *DialProber) Probe(ctx context.Context) error {
	addr := p.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}

// Monitor caches the last probe result. It starts out assuming the
// network is up, so the first save attempt goes to the remote.
type Monitor struct {
	prober Prober
	online atomic.Bool
}

// NewMonitor creates a Monitor around prober.
func NewMonitor(prober Prober) *Monitor {
	m := &Monitor{prober: prober}
	m.online.Store(true)
	return m
}

// Online returns the last known state without probing.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Check probes now and records the result. restored is true only on an
// offline to online transition.
func (m *Monitor) Check(ctx context.Context) (online, restored bool) {
	online = m.prober.Probe(ctx) == nil
	return online, m.Set(online)
}

// Set records a state observed elsewhere and reports whether it restored
// connectivity.
func (m *Monitor) Set(online bool) (restored bool) {
	was := m.online.Swap(online)
	return online && !was
}

// Static is a fixed connectivity state.
type Static bool

// Online reports s.
func (s Static) Online() bool {
	return bool(s)
}
