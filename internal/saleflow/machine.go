package saleflow

import (
	"sort"
	"sync"
	"time"

	"github.com/vhoststream/core/internal/clock"
)

// Machine is the sale-flow state machine. It holds the current phase,
// applies transition rules in descending priority order, and enforces
// min/max dwell times.
//
// All exported methods are safe for concurrent use.
type Machine struct {
	clk   clock.Clock
	rules []TransitionRule
	cfgs  map[Phase]PhaseConfig

	mu              sync.Mutex
	phase           Phase
	enteredAt       time.Time
	previousPhase   Phase
	transitionCount int
	perPhase        map[Phase]PhaseStats
	viewerCount     int
	viewerAtEntry   int

	onTransition func(from, to Phase, trigger Trigger)
}

// Option configures a [Machine] during construction.
type Option func(*Machine)

// WithRules overrides the default transition rule table.
func WithRules(rules []TransitionRule) Option {
	return func(m *Machine) { m.rules = rules }
}

// WithPhaseConfigs overrides the default per-phase dwell/style configuration.
func WithPhaseConfigs(cfgs map[Phase]PhaseConfig) Option {
	return func(m *Machine) { m.cfgs = cfgs }
}

// WithInitialPhase sets the starting phase. Defaults to [PhaseIdle].
func WithInitialPhase(p Phase) Option {
	return func(m *Machine) { m.phase = p }
}

// WithTransitionObserver registers a callback invoked after every successful
// transition, including forced ones. The Orchestrator in this module does not
// install one; it journals the transitions it triggers itself.
func WithTransitionObserver(fn func(from, to Phase, trigger Trigger)) Option {
	return func(m *Machine) { m.onTransition = fn }
}

// New creates a [Machine] starting in [PhaseIdle] using the default rule and
// phase-configuration tables, unless overridden by opts.
func New(clk clock.Clock, opts ...Option) *Machine {
	m := &Machine{
		clk:      clk,
		rules:    DefaultRules(),
		cfgs:     DefaultPhaseConfigs(),
		phase:    PhaseIdle,
		perPhase: make(map[Phase]PhaseStats),
	}
	for _, o := range opts {
		o(m)
	}
	// Rules are evaluated highest-priority-first; sort once at construction so
	// Transition can do a single linear scan.
	sort.SliceStable(m.rules, func(i, j int) bool { return m.rules[i].Priority > m.rules[j].Priority })
	m.enteredAt = clk.Now()
	return m
}

// dwellLocked returns the duration spent in the current phase. Must be
// called with m.mu held.
func (m *Machine) dwellLocked() time.Duration {
	return m.clk.Elapsed(m.enteredAt)
}

// Transition attempts to move the machine to a new phase via trigger. It
// picks the highest-priority rule matching (current phase, trigger) whose
// guard (if any) holds. The transition is refused if the current dwell is
// below the phase's MinDwell and force is false — except that a trigger of
// exactly "timeout" bypasses the min-dwell check (it is only ever raised by
// [Machine.CheckTimeout] once MaxDwell has already elapsed).
//
// Returns true if a transition occurred.
func (m *Machine) Transition(trigger Trigger, force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	dwell := m.dwellLocked()
	cfg := m.cfgs[m.phase]

	for _, rule := range m.rules {
		if rule.From != m.phase || rule.Trigger != trigger {
			continue
		}
		if rule.Guard != nil && !rule.Guard(m.viewerCount, dwell) {
			continue
		}
		if !force && trigger != "timeout" && dwell < cfg.MinDwell {
			return false
		}
		m.executeTransitionLocked(rule.To, trigger)
		return true
	}
	return false
}

// CheckTimeout transitions to the next phase via the "timeout" trigger if the
// current dwell has reached or exceeded the phase's MaxDwell. Returns true if
// a transition occurred.
func (m *Machine) CheckTimeout() bool {
	m.mu.Lock()
	dwell := m.dwellLocked()
	cfg := m.cfgs[m.phase]
	m.mu.Unlock()

	if cfg.MaxDwell > 0 && dwell >= cfg.MaxDwell {
		return m.Transition("timeout", false)
	}
	return false
}

// ForcePhase unconditionally sets the machine to phase, bypassing rule
// matching and dwell checks. reason is recorded as the trigger label on the
// emitted transition event.
func (m *Machine) ForcePhase(phase Phase, reason Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeTransitionLocked(phase, reason)
}

// executeTransitionLocked finalizes the snapshot for the departing phase and
// enters the new one. Must be called with m.mu held.
func (m *Machine) executeTransitionLocked(to Phase, trigger Trigger) {
	from := m.phase
	dwell := m.dwellLocked()

	stats := m.perPhase[from]
	stats.TotalDwell += dwell
	m.perPhase[from] = stats

	m.previousPhase = from
	m.phase = to
	m.enteredAt = m.clk.Now()
	m.viewerAtEntry = m.viewerCount
	m.transitionCount++

	if m.onTransition != nil {
		m.onTransition(from, to, trigger)
	}
}

// UpdateViewerCount sets the current viewer count, used by viewer-dependent
// transition guards and by [Machine.GetSnapshot]'s viewer-delta field.
func (m *Machine) UpdateViewerCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewerCount = n
}

// NotifySpeak records that a speak occurred while in the current phase,
// incrementing that phase's speak counter.
func (m *Machine) NotifySpeak() {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.perPhase[m.phase]
	stats.SpeakCount++
	m.perPhase[m.phase] = stats
}

// GetResponseStyle returns the response-style tag configured for the current
// phase.
func (m *Machine) GetResponseStyle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfgs[m.phase].Style
}

// GetSnapshot returns a point-in-time view of the machine's state.
func (m *Machine) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:            m.phase,
		EnteredAt:        m.enteredAt,
		Dwell:            m.dwellLocked(),
		PreviousPhase:    m.previousPhase,
		TransitionCount:  m.transitionCount,
		ViewerDeltaSince: m.viewerCount - m.viewerAtEntry,
	}
}

// GetStats returns the aggregate statistics for the session so far.
func (m *Machine) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	perPhase := make(map[Phase]PhaseStats, len(m.perPhase))
	for k, v := range m.perPhase {
		perPhase[k] = v
	}
	return Stats{
		TransitionCount: m.transitionCount,
		PerPhase:        perPhase,
		Current: Snapshot{
			Phase:            m.phase,
			EnteredAt:        m.enteredAt,
			Dwell:            m.dwellLocked(),
			PreviousPhase:    m.previousPhase,
			TransitionCount:  m.transitionCount,
			ViewerDeltaSince: m.viewerCount - m.viewerAtEntry,
		},
	}
}

// Reset returns the machine to [PhaseIdle] and clears all accumulated
// statistics, as of the clock's current time.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseIdle
	m.previousPhase = ""
	m.transitionCount = 0
	m.perPhase = make(map[Phase]PhaseStats)
	m.viewerCount = 0
	m.viewerAtEntry = 0
	m.enteredAt = m.clk.Now()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}
