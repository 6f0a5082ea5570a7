package engine

import (
	"slices"

	"github.com/limaJavier/timetabler/pkg/model"
)

// decompose partitions the sessions into independent components: two sessions belong to the
// same component when their candidates share a teacher, a room or a class. Components keep
// the session order and are ordered by their first session.
func decompose(data *model.Dataset, domains Domains) [][]model.SessionID {
	parent := make([]int, len(domains.Sessions))
	for i := range parent {
		parent[i] = i
	}
	var find func(i int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri == rj {
			return
		} else if ri < rj {
			parent[rj] = ri
		} else {
			parent[ri] = rj
		}
	}

	owners := make(map[string]int)
	claim := func(key string, i int) {
		if owner, ok := owners[key]; ok {
			union(owner, i)
		} else {
			owners[key] = i
		}
	}
	for i, session := range domains.Sessions {
		claim("class:"+data.CourseOf(session).Class, i)
		for _, candidate := range domains.Candidates[session] {
			claim("teacher:"+candidate.Teacher, i)
			claim("room:"+candidate.Room, i)
		}
	}

	byRoot := make(map[int][]model.SessionID)
	roots := make([]int, 0)
	for i, session := range domains.Sessions {
		root := find(i)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], session)
	}
	slices.Sort(roots)

	components := make([][]model.SessionID, 0, len(roots))
	for _, root := range roots {
		components = append(components, byRoot[root])
	}
	return components
}
