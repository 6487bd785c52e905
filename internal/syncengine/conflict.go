package syncengine

import (
	"github.com/google/uuid"

	"github.com/tpark252/rotationpress/internal/domain"
)

// Resolution is the outcome of resolving one schedule in a mapping.
type Resolution struct {
	ScheduleID uuid.UUID
	Identity   string
	Resolved   bool
}

// Strategy combines per-schedule resolutions into the target membership
// list. Implementations must be deterministic for identical inputs.
type Strategy interface {
	Combine(resolutions []Resolution) []string
}

// StrategyFor returns the strategy for a mapping's conflict resolution
// mode. Unknown modes fall back to merge-all.
func StrategyFor(cr domain.ConflictResolution) Strategy {
	switch cr {
	case domain.ConflictPriorityBased:
		return priorityBased{}
	case domain.ConflictRoundRobin:
		// Reserved option: behaves as merge-all until a rotation-among-
		// schedules rule is defined.
		return mergeAll{}
	default:
		return mergeAll{}
	}
}

// mergeAll unions every resolved identity, duplicates collapsed,
// first-seen order preserved.
type mergeAll struct{}

func (mergeAll) Combine(resolutions []Resolution) []string {
	seen := make(map[string]struct{}, len(resolutions))
	var users []string
	for _, r := range resolutions {
		if !r.Resolved {
			continue
		}
		if _, dup := seen[r.Identity]; dup {
			continue
		}
		seen[r.Identity] = struct{}{}
		users = append(users, r.Identity)
	}
	return users
}

// priorityBased takes the single identity from the first schedule (in the
// mapping's listed order) that resolved to somebody.
type priorityBased struct{}

func (priorityBased) Combine(resolutions []Resolution) []string {
	for _, r := range resolutions {
		if r.Resolved {
			return []string{r.Identity}
		}
	}
	return nil
}
