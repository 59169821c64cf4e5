// Package filter implements the staged admission filter that decides which
// upstream events proceed to decoding and publishing.
package filter

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/idhash"
)

// Config is an immutable filter configuration. Replace it wholesale, never mutate
// one that has been stored in a Filter.
type Config struct {
	MaxAge            time.Duration // <= 0 disables the recency stage
	MinValue          uint64
	AllowedPrograms   []string // empty admits every program
	AdmissionFraction float64  // in [0,1]
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.AdmissionFraction < 0 || c.AdmissionFraction > 1 {
		return errors.New("admission fraction must be in [0,1]")
	}
	return nil
}

// Stage names a filter stage. The zero value means the event was admitted.
type Stage string

// Filter stages in evaluation order.
const (
	StageNone    Stage = ""
	StageRecency Stage = "recency"
	StageValue   Stage = "value"
	StageProgram Stage = "program"
	StageSample  Stage = "sample"
)

// Stages lists the rejecting stages in evaluation order.
var Stages = []Stage{StageRecency, StageValue, StageProgram, StageSample}

// Decision is the result of evaluating one event.
type Decision struct {
	Admitted   bool
	RejectedBy Stage
}

// Evaluate runs the stages in order and stops at the first rejection.
// It is pure: the same event, config and now always give the same decision.
func Evaluate(e *domain.RawEvent, cfg Config, now time.Time) Decision {
	if !recent(e, cfg, now) {
		return Decision{RejectedBy: StageRecency}
	}
	if e.Value > 0 && e.Value < cfg.MinValue {
		return Decision{RejectedBy: StageValue}
	}
	if !programAllowed(e.ProgramID, cfg.AllowedPrograms) {
		return Decision{RejectedBy: StageProgram}
	}
	if !sampled(e.Signature, cfg.AdmissionFraction) {
		return Decision{RejectedBy: StageSample}
	}
	return Decision{Admitted: true}
}

// Admit reports whether e passes every stage.
func Admit(e *domain.RawEvent, cfg Config, now time.Time) bool {
	return Evaluate(e, cfg, now).Admitted
}

// recent rejects events whose age is at or beyond MaxAge.
func recent(e *domain.RawEvent, cfg Config, now time.Time) bool {
	if cfg.MaxAge <= 0 {
		return true
	}
	return e.AgeMs(now.UnixMilli()) < cfg.MaxAge.Milliseconds()
}

func programAllowed(programID string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, p := range allowed {
		if p == "" {
			continue
		}
		if programID == p || strings.Contains(programID, p) {
			return true
		}
	}
	return false
}

func sampled(signature string, fraction float64) bool {
	switch {
	case fraction >= 1:
		return true
	case fraction <= 0:
		return false
	}
	return idhash.AdmissionFraction(signature) > 1-fraction
}

// Filter holds the active Config and allows it to be swapped atomically between events.
type Filter struct {
	cfg atomic.Pointer[Config]
	now func() time.Time
}

// New creates a filter with an initial config.
func New(cfg Config) *Filter {
	f := &Filter{now: time.Now}
	f.Store(cfg)
	return f
}

// Store replaces the active config.
func (f *Filter) Store(cfg Config) {
	c := cfg
	c.AllowedPrograms = append([]string(nil), cfg.AllowedPrograms...)
	f.cfg.Store(&c)
}

// Config returns the active config.
func (f *Filter) Config() Config {
	return *f.cfg.Load()
}

// Evaluate evaluates e against a single load of the active config.
func (f *Filter) Evaluate(e *domain.RawEvent) Decision {
	return Evaluate(e, *f.cfg.Load(), f.now())
}

// Admit reports whether e passes the active config.
func (f *Filter) Admit(e *domain.RawEvent) bool {
	return f.Evaluate(e).Admitted
}
