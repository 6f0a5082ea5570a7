package engine

import (
	"slices"

	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
)

// deficit is a group of sessions that cannot all get pairwise distinct slots.
type deficit struct {
	sessions   []model.SessionID
	constraint string
}

// precheck matches the sessions of every teacher and every class to their admissible slots.
// A group whose sessions exclude each other per slot and whose largest matching is smaller
// than the group proves the problem infeasible before any search; the deficit names only the
// sessions that cannot share the slots they admit.
func precheck(catalog constraint.Catalog, data *model.Dataset, domains Domains) (*deficit, error) {
	groups := make(map[string][]model.SessionID)
	for _, session := range domains.Sessions {
		candidates := domains.Candidates[session]
		groups["class:"+data.CourseOf(session).Class] = append(groups["class:"+data.CourseOf(session).Class], session)

		teachers := lo.Uniq(lo.Map(candidates, func(candidate model.Assignment, _ int) string { return candidate.Teacher }))
		if len(teachers) == 1 {
			groups["teacher:"+teachers[0]] = append(groups["teacher:"+teachers[0]], session)
		}
	}

	keys := lo.Keys(groups)
	slices.Sort(keys)
	for _, key := range keys {
		sessions := groups[key]
		if len(sessions) < 2 {
			continue
		}
		rejecting, ok := exclusive(catalog, data, domains, sessions)
		if !ok {
			continue
		}

		slots := lo.Uniq(lo.FlatMap(sessions, func(session model.SessionID, _ int) []int {
			return lo.Map(domains.Candidates[session], func(candidate model.Assignment, _ int) int { return candidate.Slot })
		}))
		slices.Sort(slots)
		matching, err := largestMatching(domains, sessions, slots)
		if err != nil {
			return nil, err
		} else if len(matching) >= len(sessions) {
			continue
		}
		return &deficit{sessions: violator(domains, sessions, matching), constraint: rejecting}, nil
	}
	return nil, nil
}

// exclusive probes whether two sessions of the group clash when they share a slot.
func exclusive(catalog constraint.Catalog, data *model.Dataset, domains Domains, sessions []model.SessionID) (string, bool) {
	for i := 0; i < len(sessions)-1; i++ {
		for j := i + 1; j < len(sessions); j++ {
			for _, a := range domains.Candidates[sessions[i]] {
				b, found := lo.Find(domains.Candidates[sessions[j]], func(b model.Assignment) bool { return b.Slot == a.Slot })
				if !found {
					continue
				}
				if rejecting, ok := catalog.Clash(data, a, b); ok {
					return rejecting.Name(), true
				}
				return "", false
			}
		}
	}
	// No two sessions share a slot
	return "", false
}

// largestMatching returns a maximum matching of the sessions to pairwise distinct slots.
func largestMatching(domains Domains, sessions []model.SessionID, slots []int) (map[model.SessionID]int, error) {
	slotSets := lo.SliceToMap(sessions, func(session model.SessionID) (model.SessionID, map[int]bool) {
		return session, lo.SliceToMap(domains.Candidates[session], func(candidate model.Assignment) (int, bool) { return candidate.Slot, true })
	})

	// Build neighbors predicate based on admissible slots
	neighbors := func(sessionAny any, slotAny any) (bool, error) {
		return slotSets[sessionAny.(model.SessionID)][slotAny.(int)], nil
	}

	// Transform sessions and slots to slices of any
	sessionsAny, slotsAny := lo.Map(sessions, func(session model.SessionID, _ int) any { return session }), lo.Map(slots, func(slot int, _ int) any { return slot })

	graph, err := bipartitegraph.NewBipartiteGraph(sessionsAny, slotsAny, neighbors)
	if err != nil {
		return nil, err
	}

	matching := make(map[model.SessionID]int, len(sessions))
	for _, edge := range graph.LargestMatching() {
		sessionIndex, slotIndex := edge.Node1, edge.Node2-len(sessions)
		matching[sessions[sessionIndex]] = slots[slotIndex]
	}
	return matching, nil
}

// violator shrinks a group without a perfect matching to a Hall violator: an unmatched session
// plus every session reachable from it through alternating paths. Those sessions together
// admit one slot fewer than their count.
func violator(domains Domains, sessions []model.SessionID, matching map[model.SessionID]int) []model.SessionID {
	owner := make(map[int]model.SessionID, len(matching))
	for session, slot := range matching {
		owner[slot] = session
	}
	start, _ := lo.Find(sessions, func(session model.SessionID) bool {
		_, matched := matching[session]
		return !matched
	})

	reached := map[model.SessionID]bool{start: true}
	queue := []model.SessionID{start}
	for len(queue) > 0 {
		session := queue[0]
		queue = queue[1:]
		for _, candidate := range domains.Candidates[session] {
			next, ok := owner[candidate.Slot]
			if ok && !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return lo.Filter(sessions, func(session model.SessionID, _ int) bool { return reached[session] })
}
