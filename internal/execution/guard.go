// Package execution turns trading intents into normalized orders, restricted
// to the execution phases in which order creation is allowed.
package execution

import (
	"fmt"

	"crypto_backtest/internal/domain"
)

// orderingPhases lists the phases in which sizing operations may run.
var orderingPhases = map[domain.Phase]bool{
	domain.PhaseInit:          true,
	domain.PhaseBeforeSession: true,
	domain.PhaseOnBar:         true,
	domain.PhaseAfterSession:  true,
	domain.PhaseScheduled:     true,
	domain.PhaseClosed:        false,
}

// Guard tracks the current execution phase. Closed is terminal.
// Not safe for concurrent use; the run driver owns it.
type Guard struct {
	phase domain.Phase
}

// NewGuard starts in PhaseInit.
func NewGuard() *Guard {
	return &Guard{phase: domain.PhaseInit}
}

// Phase returns the current phase.
func (g *Guard) Phase() domain.Phase { return g.phase }

// Enter moves to phase. Closed can only be reached through Close and never left.
func (g *Guard) Enter(phase domain.Phase) error {
	if g.phase == domain.PhaseClosed {
		return fmt.Errorf("%w: cannot enter %s after run end", domain.ErrPhaseViolation, phase)
	}
	if phase == domain.PhaseClosed {
		return fmt.Errorf("%w: closed is entered through Close", domain.ErrInvalidArgument)
	}
	if _, ok := orderingPhases[phase]; !ok {
		return fmt.Errorf("%w: unknown phase %d", domain.ErrInvalidArgument, phase)
	}
	g.phase = phase
	return nil
}

// Close ends the run; order creation is disabled from now on.
func (g *Guard) Close() {
	g.phase = domain.PhaseClosed
}

// Check fails with ErrPhaseViolation when op may not run in the current phase.
func (g *Guard) Check(op string) error {
	if !orderingPhases[g.phase] {
		return fmt.Errorf("%w: %s is not allowed in phase %s", domain.ErrPhaseViolation, op, g.phase)
	}
	return nil
}
