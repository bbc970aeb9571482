// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"math"
	"time"

	"lydia-device/metricsx"
	"lydia-device/parse"
	"lydia-device/wire"
)

// Execer is the one capability the poll loop needs from the serial
// session: a blocking request/response exchange.
type Execer interface {
	Exec(cmd string, timeout time.Duration) (string, error)
}

// PollLoop periodically probes device status and drives the Hub's
// debounced fan-out.
type PollLoop struct {
	exec    Execer
	hub     *Hub
	period  time.Duration
	timeout time.Duration
	metrics *metricsx.Metrics
}

// NewPollLoop builds a PollLoop polling at hz, clamped to [0.5, 5.0].
// metrics may be nil.
func NewPollLoop(exec Execer, hub *Hub, hz float64, metrics *metricsx.Metrics) *PollLoop {
	hz = math.Max(0.5, math.Min(hz, 5.0))
	return &PollLoop{
		exec:    exec,
		hub:     hub,
		period:  time.Duration(float64(time.Second) / hz),
		timeout: 5 * time.Second,
		metrics: metrics,
	}
}

// Run polls until ctx is canceled, returning ctx.Err() on exit.
// Cancellation is a normal exit, not a failure, per the gateway's
// shutdown contract.
func (p *PollLoop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t0 := time.Now()
		tsMs := t0.UnixMilli()

		stdout, err := p.exec.Exec("status", p.timeout)
		latencyMs := time.Since(t0).Milliseconds()
		if p.metrics != nil {
			p.metrics.PollLatency.Observe(float64(latencyMs))
		}

		if err != nil {
			p.hub.Broadcast(wire.EventStatusError(tsMs, latencyMs, err.Error()))
		} else {
			parsed := parse.ParseStatus(stdout)
			p.hub.Broadcast(wire.EventHeartbeat(tsMs, latencyMs))
			if p.hub.Changed(parsed) {
				p.hub.Broadcast(wire.EventStatus(tsMs, latencyMs, parsed))
			}
		}

		sleepFor := p.period - time.Since(t0)
		if sleepFor < 0 {
			sleepFor = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}
