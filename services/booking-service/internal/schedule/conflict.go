package schedule

import (
	"context"
	"sort"
)

// BlockingSource reads the appointments whose buffer-expanded intervals touch
// a window. Implementations should already restrict to blocking statuses, but
// the checker re-filters defensively since the status rule is a correctness
// invariant, not a query optimization.
type BlockingSource interface {
	BlockingAppointments(ctx context.Context, barberID string, window Interval) ([]Appointment, error)
}

// Checker decides whether candidate intervals collide with existing
// appointments. It is advisory: the final double-booking guarantee comes from
// the storage layer's exclusion constraint at insert time.
type Checker struct {
	source BlockingSource
}

func NewChecker(source BlockingSource) *Checker {
	return &Checker{source: source}
}

// HasConflict reports whether candidate overlaps any blocking appointment for
// the barber. Source failures propagate as ErrUnavailable.
func (c *Checker) HasConflict(ctx context.Context, barberID string, candidate Interval) (bool, error) {
	if !candidate.valid() {
		return false, nil
	}
	appts, err := c.source.BlockingAppointments(ctx, barberID, candidate)
	if err != nil {
		return false, WrapUnavailable(err)
	}
	for _, a := range appts {
		if a.Status.Blocks() && candidate.Overlaps(a.Blocked()) {
			return true, nil
		}
	}
	return false, nil
}

// FilterConflicts returns the candidates that do not overlap any blocking
// appointment, preserving input order. It issues a single source read spanning
// all candidates and sweeps both sides in one pass, so cost is proportional to
// candidates plus appointments rather than their product.
func (c *Checker) FilterConflicts(ctx context.Context, barberID string, candidates []Interval) ([]Interval, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	span := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.Start.Before(span.Start) {
			span.Start = cand.Start
		}
		if cand.End.After(span.End) {
			span.End = cand.End
		}
	}

	appts, err := c.source.BlockingAppointments(ctx, barberID, span)
	if err != nil {
		return nil, WrapUnavailable(err)
	}

	blocked := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status.Blocks() {
			blocked = append(blocked, a.Blocked())
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].Start.Before(blocked[j].Start) })

	// Candidates arrive sorted from ComputeCandidates; sort a copy if not, so
	// the sweep below stays linear.
	sorted := candidates
	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) }) {
		sorted = append([]Interval(nil), candidates...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	}

	free := make([]Interval, 0, len(sorted))
	i := 0
	for _, cand := range sorted {
		for i < len(blocked) && !blocked[i].End.After(cand.Start) {
			i++
		}
		// blocked[i] is the first interval ending after cand.Start; it is the
		// only one that can overlap cand, except longer blocks behind it, which
		// would also end after cand.Start and so were not skipped.
		conflict := false
		for j := i; j < len(blocked) && blocked[j].Start.Before(cand.End); j++ {
			if cand.Overlaps(blocked[j]) {
				conflict = true
				break
			}
		}
		if !conflict {
			free = append(free, cand)
		}
	}
	return free, nil
}
