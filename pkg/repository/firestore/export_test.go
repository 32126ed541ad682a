package firestore

import "github.com/secmon-lab/recall/pkg/domain/model"

// PlanSearch reports the pushed-down filters as "Path op" and whether the
// search runs as a nearest-neighbor query
func PlanSearch(q *model.MemorySearch) ([]string, bool) {
	plan := planSearch(q)
	filters := make([]string, len(plan.pushdown))
	for i, p := range plan.pushdown {
		filters[i] = p.path + " " + p.op
	}
	return filters, plan.nearest
}
