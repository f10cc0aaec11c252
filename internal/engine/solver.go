package engine

import (
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
)

// VariableOrdering selects which unassigned session to place next.
type VariableOrdering string

const (
	// OrderMostConstrained picks the smallest remaining domain first (MRV).
	OrderMostConstrained VariableOrdering = "most_constrained"
	// OrderLeastConstraining picks the variable touching the fewest
	// hard-constraint interactions.
	OrderLeastConstraining VariableOrdering = "least_constraining"
	// OrderRandom picks uniformly, useful for diverse alternatives.
	OrderRandom VariableOrdering = "random"
)

// ValueOrdering sorts a variable's candidate slots.
type ValueOrdering string

const (
	// ValueLeastConstraining prefers slots that eliminate the fewest options
	// from other domains.
	ValueLeastConstraining ValueOrdering = "least_constraining"
	// ValueMostConstraining is the reverse: lock hard-to-place sessions early.
	ValueMostConstraining ValueOrdering = "most_constraining"
	// ValueRandom shuffles candidates.
	ValueRandom ValueOrdering = "random"
)

// Variable pairs a session with its remaining candidate slots. The domain
// shrinks only inside one search branch and is restored on backtrack.
type Variable struct {
	Session *CourseSession
	Domain  []*TimeSlot
}

// NewVariables builds one variable per session, each with a fresh full-domain
// copy of the slot list so attempts never share pruning state.
func NewVariables(sessions []*CourseSession, slots []*TimeSlot) []*Variable {
	vars := make([]*Variable, 0, len(sessions))
	for _, session := range sessions {
		domain := make([]*TimeSlot, len(slots))
		copy(domain, slots)
		vars = append(vars, &Variable{Session: session, Domain: domain})
	}
	return vars
}

// SolverOptions bounds and shapes one search attempt.
type SolverOptions struct {
	MaxTime          time.Duration
	MaxBacktracks    int
	Propagation      bool
	VariableOrdering VariableOrdering
	ValueOrdering    ValueOrdering
	Seed             int64
}

const (
	defaultMaxTime       = 30 * time.Second
	defaultMaxBacktracks = 1000
	maxTraceEvents       = 512
)

// TraceEvent is one recorded search step.
type TraceEvent struct {
	Step      string `json:"step"`
	SessionID string `json:"session_id,omitempty"`
	SlotID    string `json:"slot_id,omitempty"`
}

// Trace carries diagnostics for one solver run. Timeout, backtrack-limit and
// exhaustion all surface as a failed solve; the counters here are the only
// way to tell them apart.
type Trace struct {
	Assignments    int          `json:"assignments"`
	Backtracks     int          `json:"backtracks"`
	Propagations   int          `json:"propagations"`
	Wipeouts       int          `json:"wipeouts"`
	TimedOut       bool         `json:"timed_out"`
	BacktrackLimit bool         `json:"backtrack_limit"`
	Elapsed        time.Duration `json:"elapsed"`
	Events         []TraceEvent `json:"events,omitempty"`
}

func (t *Trace) record(step, sessionID, slotID string) {
	if len(t.Events) >= maxTraceEvents {
		return
	}
	t.Events = append(t.Events, TraceEvent{Step: step, SessionID: sessionID, SlotID: slotID})
}

// Solver runs a plain synchronous backtracking search over session variables.
// Only hard constraints participate in the search; soft-constraint quality is
// the orchestrator's concern.
type Solver struct {
	model  *Model
	hard   []Constraint
	opts   SolverOptions
	logger *zap.Logger

	rng        *rand.Rand
	trace      *Trace
	deadline   time.Time
	backtracks int
}

// NewSolver builds a solver over the given model and hard constraints.
func NewSolver(model *Model, hard []Constraint, opts SolverOptions, logger *zap.Logger) *Solver {
	if opts.MaxTime <= 0 {
		opts.MaxTime = defaultMaxTime
	}
	if opts.MaxBacktracks <= 0 {
		opts.MaxBacktracks = defaultMaxBacktracks
	}
	if opts.VariableOrdering == "" {
		opts.VariableOrdering = OrderMostConstrained
	}
	if opts.ValueOrdering == "" {
		opts.ValueOrdering = ValueLeastConstraining
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Solver{
		model:  model,
		hard:   hard,
		opts:   opts,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Solve searches for a complete assignment. The returned bool reports
// success; on failure the trace counters describe what gave out first.
func (s *Solver) Solve(vars []*Variable) (*Assignment, *Trace, bool) {
	s.trace = &Trace{}
	s.backtracks = 0
	start := time.Now()
	s.deadline = start.Add(s.opts.MaxTime)

	assignment := NewAssignment()
	ok := s.search(vars, assignment)
	s.trace.Elapsed = time.Since(start)

	s.logger.Debug("solver finished",
		zap.Bool("success", ok),
		zap.Int("assignments", s.trace.Assignments),
		zap.Int("backtracks", s.trace.Backtracks),
		zap.Int("propagations", s.trace.Propagations),
		zap.Duration("elapsed", s.trace.Elapsed),
	)
	return assignment, s.trace, ok
}

func (s *Solver) search(vars []*Variable, a *Assignment) bool {
	// Budget checks sit at the top of every call so deep recursion cannot
	// overrun the limits between checks.
	if time.Now().After(s.deadline) {
		s.trace.TimedOut = true
		return false
	}
	if s.backtracks >= s.opts.MaxBacktracks {
		s.trace.BacktrackLimit = true
		return false
	}

	variable := s.selectVariable(vars, a)
	if variable == nil {
		return true
	}

	for _, slot := range s.orderValues(variable, vars, a) {
		if !s.consistent(a, variable.Session, slot) {
			continue
		}

		a.Assign(variable.Session.ID, slot)
		s.trace.Assignments++
		s.trace.record("assign", variable.Session.ID, slot.ID)

		if s.opts.Propagation {
			snapshot, alive := s.propagate(vars, a)
			if alive && s.search(vars, a) {
				return true
			}
			s.restore(vars, snapshot)
		} else if s.search(vars, a) {
			return true
		}

		a.Unassign(variable.Session.ID)
	}

	// One backtrack per failed variable attempt, not per failed value.
	s.backtracks++
	s.trace.Backtracks++
	s.trace.record("backtrack", variable.Session.ID, "")
	return false
}

// consistent short-circuits on the first violated hard constraint; full
// evaluation is only needed for diagnostics, not pruning.
func (s *Solver) consistent(a *Assignment, session *CourseSession, slot *TimeSlot) bool {
	for _, c := range s.hard {
		if c.Violated(a, session, slot) {
			return false
		}
	}
	return true
}

func (s *Solver) selectVariable(vars []*Variable, a *Assignment) *Variable {
	var unassigned []*Variable
	for _, v := range vars {
		if _, ok := a.Slot(v.Session.ID); !ok {
			unassigned = append(unassigned, v)
		}
	}
	if len(unassigned) == 0 {
		return nil
	}

	switch s.opts.VariableOrdering {
	case OrderRandom:
		return unassigned[s.rng.Intn(len(unassigned))]
	case OrderLeastConstraining:
		best := unassigned[0]
		bestScore := s.interactionCount(best.Session)
		for _, v := range unassigned[1:] {
			if score := s.interactionCount(v.Session); score < bestScore {
				best, bestScore = v, score
			}
		}
		return best
	default: // OrderMostConstrained
		best := unassigned[0]
		for _, v := range unassigned[1:] {
			if len(v.Domain) < len(best.Domain) {
				best = v
			}
		}
		return best
	}
}

// interactionCount totals how many other sessions this one interacts with
// across all hard constraints.
func (s *Solver) interactionCount(session *CourseSession) int {
	count := 0
	for _, c := range s.hard {
		count += len(c.AffectedSessions(session))
	}
	return count
}

func (s *Solver) orderValues(v *Variable, vars []*Variable, a *Assignment) []*TimeSlot {
	candidates := make([]*TimeSlot, len(v.Domain))
	copy(candidates, v.Domain)

	switch s.opts.ValueOrdering {
	case ValueRandom:
		s.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	case ValueMostConstraining:
		scores := s.eliminationScores(v, candidates, vars, a)
		sort.SliceStable(candidates, func(i, j int) bool {
			return scores[candidates[i].ID] > scores[candidates[j].ID]
		})
	default: // ValueLeastConstraining
		scores := s.eliminationScores(v, candidates, vars, a)
		sort.SliceStable(candidates, func(i, j int) bool {
			return scores[candidates[i].ID] < scores[candidates[j].ID]
		})
	}
	return candidates
}

// eliminationScores counts, for each candidate slot, how many entries it
// would remove from other unassigned domains if chosen.
func (s *Solver) eliminationScores(v *Variable, candidates []*TimeSlot, vars []*Variable, a *Assignment) map[string]int {
	scores := make(map[string]int, len(candidates))
	for _, slot := range candidates {
		a.Assign(v.Session.ID, slot)
		eliminated := 0
		for _, other := range vars {
			if other == v {
				continue
			}
			if _, assigned := a.Slot(other.Session.ID); assigned {
				continue
			}
			for _, otherSlot := range other.Domain {
				if !s.consistent(a, other.Session, otherSlot) {
					eliminated++
				}
			}
		}
		a.Unassign(v.Session.ID)
		scores[slot.ID] = eliminated
	}
	return scores
}

// propagate filters every unassigned domain down to slots consistent with
// the current partial assignment, repeating until a fixed point. It returns
// the pre-propagation snapshot; the caller must restore it on any failure
// path so domain pruning never leaks across sibling branches.
func (s *Solver) propagate(vars []*Variable, a *Assignment) (map[string][]*TimeSlot, bool) {
	snapshot := make(map[string][]*TimeSlot)
	for _, v := range vars {
		if _, assigned := a.Slot(v.Session.ID); assigned {
			continue
		}
		saved := make([]*TimeSlot, len(v.Domain))
		copy(saved, v.Domain)
		snapshot[v.Session.ID] = saved
	}

	for {
		changed := false
		for _, v := range vars {
			if _, assigned := a.Slot(v.Session.ID); assigned {
				continue
			}
			filtered := v.Domain[:0:0]
			for _, slot := range v.Domain {
				if s.consistent(a, v.Session, slot) {
					filtered = append(filtered, slot)
				}
			}
			if len(filtered) == 0 {
				s.trace.Wipeouts++
				s.trace.record("wipeout", v.Session.ID, "")
				return snapshot, false
			}
			if len(filtered) < len(v.Domain) {
				v.Domain = filtered
				changed = true
			}
		}
		s.trace.Propagations++
		s.trace.record("propagate", "", "")
		if !changed {
			return snapshot, true
		}
	}
}

func (s *Solver) restore(vars []*Variable, snapshot map[string][]*TimeSlot) {
	for _, v := range vars {
		if saved, ok := snapshot[v.Session.ID]; ok {
			v.Domain = saved
		}
	}
}
