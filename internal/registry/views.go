package registry

import (
	"math"

	"github.com/intent-solutions-io/irsb-protocol/internal/ledgertime"
	"github.com/intent-solutions-io/irsb-protocol/internal/protocol"
)

// Executor returns a copy of the stored record. Callers cannot mutate
// registry state through it.
func (r *Registry) Executor(id protocol.ExecutorID) (Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return Executor{}, err
	}
	return *e, nil
}

// Status returns the lifecycle status of an executor.
func (r *Registry) Status(id protocol.ExecutorID) (protocol.ExecutorStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return 0, err
	}
	return e.Status, nil
}

// Stakes returns the available and locked stake of an executor.
func (r *Registry) Stakes(id protocol.ExecutorID) (available, locked uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return 0, 0, err
	}
	return e.AvailableStake, e.LockedStake, nil
}

// OperatorOf returns the operator address bound to an executor id.
func (r *Registry) OperatorOf(id protocol.ExecutorID) (protocol.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return protocol.Address{}, err
	}
	return e.Operator, nil
}

// DecayMultiplierBps computes the read-time reputation decay multiplier in
// basis points. The multiplier halves for every half-life of inactivity and
// is floored at DecayFloorBps. Pure function of (lastActivity, now); stored
// counters are never touched, so the historical record stays exact.
func DecayMultiplierBps(lastActivity, now ledgertime.Time) uint32 {
	if !now.After(lastActivity) {
		return protocol.FullMultiplierBps
	}
	elapsed := now.Sub(lastActivity)
	halvings := float64(elapsed) / float64(protocol.DecayHalfLife)
	multiplier := uint32(math.Pow(0.5, halvings) * protocol.FullMultiplierBps)
	if multiplier < protocol.DecayFloorBps {
		return protocol.DecayFloorBps
	}
	return multiplier
}

// Score returns the decayed reputation score of an executor in basis
// points: success ratio scaled by the inactivity decay multiplier.
func (r *Registry) Score(id protocol.ExecutorID, now ledgertime.Time) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.executor(id)
	if err != nil {
		return 0, err
	}
	if e.Reputation.TotalFills == 0 {
		return 0, nil
	}
	successBps := uint64(protocol.FullMultiplierBps) * e.Reputation.SuccessfulFills / e.Reputation.TotalFills
	decay := DecayMultiplierBps(e.LastActivity, now)
	return uint32(successBps * uint64(decay) / protocol.FullMultiplierBps), nil
}
