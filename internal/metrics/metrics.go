// Package metrics accumulates pipeline counters and exposes them through an
// immutable snapshot for external reporters.
package metrics

import (
	"sync/atomic"
	"time"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/filter"
)

// Metrics holds process-lifetime pipeline counters. All methods are safe for
// concurrent use.
type Metrics struct {
	received       atomic.Uint64
	admitted       atomic.Uint64
	publishSuccess atomic.Uint64
	publishFailure atomic.Uint64
	latencySumMs   atomic.Int64
	lastEventMs    atomic.Int64 // last admitted event
	lastReceiveMs  atomic.Int64 // last event off the stream
	stalled        atomic.Bool

	// fixed key sets, read-only after New
	rejected map[filter.Stage]*atomic.Uint64
	classes  map[string]*atomic.Uint64

	startTime time.Time
	now       func() time.Time
}

// New creates a Metrics instance started now.
func New() *Metrics {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Metrics instance using now as its clock.
func NewWithClock(now func() time.Time) *Metrics {
	m := &Metrics{
		rejected:  make(map[filter.Stage]*atomic.Uint64, len(filter.Stages)),
		classes:   make(map[string]*atomic.Uint64, 4),
		startTime: now(),
		now:       now,
	}
	for _, s := range filter.Stages {
		m.rejected[s] = new(atomic.Uint64)
	}
	for _, c := range []string{decoder.ClassPoolCreation, decoder.ClassSwap, decoder.ClassLiquidity, decoder.ClassOther} {
		m.classes[c] = new(atomic.Uint64)
	}
	return m
}

// RecordReceived counts an inbound event.
func (m *Metrics) RecordReceived() {
	m.received.Add(1)
	m.lastReceiveMs.Store(m.now().UnixMilli())
}

// RecordRejected counts an event rejected at stage.
func (m *Metrics) RecordRejected(stage filter.Stage) {
	if c, ok := m.rejected[stage]; ok {
		c.Add(1)
	}
}

// RecordClass counts an admitted event by decode class.
func (m *Metrics) RecordClass(class string) {
	c, ok := m.classes[class]
	if !ok {
		c = m.classes[decoder.ClassOther]
	}
	c.Add(1)
}

// RecordAdmitted counts an admitted event with its end-to-end latency.
// Negative latencies from producer clock skew are clamped to zero.
func (m *Metrics) RecordAdmitted(latencyMs int64) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	m.admitted.Add(1)
	m.latencySumMs.Add(latencyMs)
	m.lastEventMs.Store(m.now().UnixMilli())
}

// RecordPublishSuccess counts one successful topic delivery.
func (m *Metrics) RecordPublishSuccess() {
	m.publishSuccess.Add(1)
}

// RecordPublishFailure counts one failed topic delivery.
func (m *Metrics) RecordPublishFailure() {
	m.publishFailure.Add(1)
}

// SetStalled records whether the upstream looks stalled.
func (m *Metrics) SetStalled(stalled bool) {
	m.stalled.Store(stalled)
}

// StartTime returns when the accumulator was created.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

// Snapshot is a point-in-time copy of the counters plus derived rates.
type Snapshot struct {
	Received           uint64
	Admitted           uint64
	PublishSuccess     uint64
	PublishFailure     uint64
	Rejected           map[filter.Stage]uint64
	Classes            map[string]uint64
	AvgLatencyMs       float64
	FilterRate         float64 // admitted / received
	PublishSuccessRate float64 // success / (success + failure)
	LastEventTime      time.Time
	LastReceiveTime    time.Time
	StartTime          time.Time
	Uptime             time.Duration
	Stalled            bool
}

// Snapshot reads every counter. Counters are read individually, so a snapshot
// taken mid-event may be off by that event.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Received:       m.received.Load(),
		Admitted:       m.admitted.Load(),
		PublishSuccess: m.publishSuccess.Load(),
		PublishFailure: m.publishFailure.Load(),
		Rejected:       make(map[filter.Stage]uint64, len(m.rejected)),
		Classes:        make(map[string]uint64, len(m.classes)),
		StartTime:      m.startTime,
		Uptime:         m.now().Sub(m.startTime),
		Stalled:        m.stalled.Load(),
	}
	for stage, c := range m.rejected {
		s.Rejected[stage] = c.Load()
	}
	for class, c := range m.classes {
		s.Classes[class] = c.Load()
	}

	if s.Admitted > 0 {
		s.AvgLatencyMs = float64(m.latencySumMs.Load()) / float64(s.Admitted)
	}
	if s.Received > 0 {
		s.FilterRate = float64(s.Admitted) / float64(s.Received)
	}
	if total := s.PublishSuccess + s.PublishFailure; total > 0 {
		s.PublishSuccessRate = float64(s.PublishSuccess) / float64(total)
	}
	if ms := m.lastEventMs.Load(); ms > 0 {
		s.LastEventTime = time.UnixMilli(ms)
	}
	if ms := m.lastReceiveMs.Load(); ms > 0 {
		s.LastReceiveTime = time.UnixMilli(ms)
	}
	return s
}

// SinceLastReceive returns how long ago the last event arrived, measured from
// start when nothing has arrived yet.
func (m *Metrics) SinceLastReceive() time.Duration {
	last := m.startTime
	if ms := m.lastReceiveMs.Load(); ms > 0 {
		last = time.UnixMilli(ms)
	}
	return m.now().Sub(last)
}
