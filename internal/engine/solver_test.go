package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultHard(model *Model) []Constraint {
	return []Constraint{
		NewTeacherClashConstraint(model, 10),
		NewSectionClashConstraint(model, 10),
		NewWorkingHoursConstraint(model, 8),
		NewLunchBreakConstraint(model, 8),
		NewRoomClashConstraint(model, 6),
	}
}

func TestSolverFindsCompleteAssignment(t *testing.T) {
	model, slots, sessions := newTestModel(t)
	hard := defaultHard(model)

	orderings := []struct {
		variable VariableOrdering
		value    ValueOrdering
	}{
		{OrderMostConstrained, ValueLeastConstraining},
		{OrderMostConstrained, ValueMostConstraining},
		{OrderLeastConstraining, ValueLeastConstraining},
		{OrderRandom, ValueRandom},
	}

	for _, ord := range orderings {
		t.Run(string(ord.variable)+"/"+string(ord.value), func(t *testing.T) {
			opts := SolverOptions{
				MaxTime:          5 * time.Second,
				MaxBacktracks:    2000,
				Propagation:      true,
				VariableOrdering: ord.variable,
				ValueOrdering:    ord.value,
				Seed:             42,
			}
			solver := NewSolver(model, hard, opts, zap.NewNop())
			assignment, trace, ok := solver.Solve(NewVariables(sessions, slots))

			require.True(t, ok, "expected a solution; trace: %+v", trace)
			assert.Equal(t, len(sessions), assignment.Len())

			// Soundness: the returned assignment violates no hard constraint.
			for _, c := range hard {
				assert.Empty(t, c.Violations(assignment), "constraint %s violated", c.Name())
			}
		})
	}
}

func TestSolverReportsInfeasibility(t *testing.T) {
	cfg := TimeConfig{
		StartTime:     "09:00",
		EndTime:       "10:00",
		ClassDuration: 60,
		WorkingDays:   []string{"Monday"},
	}
	slots, err := GenerateTimeSlots(cfg)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	// Two same-teacher sessions competing for a single slot.
	sessions := BuildSessions([]CourseAssignment{sampleCourse("CS101", "T1", 2, 0)}, []string{"A"})
	require.Len(t, sessions, 2)
	model, err := NewModel(cfg, slots, sessions)
	require.NoError(t, err)

	vars := NewVariables(sessions, slots)
	solver := NewSolver(model, defaultHard(model), SolverOptions{
		MaxTime:       time.Second,
		MaxBacktracks: 100,
		Propagation:   true,
		Seed:          1,
	}, zap.NewNop())

	_, trace, ok := solver.Solve(vars)
	require.False(t, ok)
	assert.Greater(t, trace.Backtracks, 0)
	assert.False(t, trace.TimedOut)

	// Domains must be fully restored after a failed search: pruning from dead
	// branches never leaks out.
	for _, v := range vars {
		assert.Len(t, v.Domain, len(slots), "domain of %s not restored", v.Session.ID)
	}
}

func TestSolverHonorsBacktrackLimit(t *testing.T) {
	cfg := TimeConfig{
		StartTime:     "09:00",
		EndTime:       "11:00",
		ClassDuration: 60,
		WorkingDays:   []string{"Monday"},
	}
	slots, err := GenerateTimeSlots(cfg)
	require.NoError(t, err)

	// Three sessions, two slots: unsatisfiable, forces backtracking.
	sessions := BuildSessions([]CourseAssignment{sampleCourse("CS101", "T1", 3, 0)}, []string{"A"})
	model, err := NewModel(cfg, slots, sessions)
	require.NoError(t, err)

	solver := NewSolver(model, defaultHard(model), SolverOptions{
		MaxTime:       time.Second,
		MaxBacktracks: 1,
		Propagation:   false,
		Seed:          1,
	}, zap.NewNop())

	_, trace, ok := solver.Solve(NewVariables(sessions, slots))
	require.False(t, ok)
	assert.True(t, trace.BacktrackLimit)
}

func TestSolverTimeout(t *testing.T) {
	model, slots, sessions := newTestModel(t)
	solver := NewSolver(model, defaultHard(model), SolverOptions{
		MaxTime:       time.Second,
		MaxBacktracks: 1000,
		Seed:          1,
	}, zap.NewNop())
	// Force an already-expired deadline.
	solver.opts.MaxTime = -time.Second

	_, trace, ok := solver.Solve(NewVariables(sessions, slots))
	require.False(t, ok)
	assert.True(t, trace.TimedOut)
}

func TestPropagationPrunesInconsistentSlots(t *testing.T) {
	model, slots, sessions := newTestModel(t)
	solver := NewSolver(model, defaultHard(model), SolverOptions{
		MaxTime:       5 * time.Second,
		MaxBacktracks: 2000,
		Propagation:   true,
		Seed:          7,
	}, zap.NewNop())

	_, trace, ok := solver.Solve(NewVariables(sessions, slots))
	require.True(t, ok)
	assert.Greater(t, trace.Propagations, 0)
}

func TestNewVariablesCopiesDomains(t *testing.T) {
	_, slots, sessions := newTestModel(t)
	a := NewVariables(sessions, slots)
	b := NewVariables(sessions, slots)

	a[0].Domain = a[0].Domain[:1]
	assert.Len(t, b[0].Domain, len(slots), "attempts must not share domain state")
}
