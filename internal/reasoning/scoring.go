package reasoning

import (
	"sort"

	"github.com/clearity-app/clearity/internal/mindmap"
)

// Priority score weights. Severity carries the largest weight so a task
// linked to a more severe issue can never score below an otherwise-identical
// task linked to a less severe one.
const (
	weightSeverity   = 0.5
	weightImportance = 0.3
	weightQuickness  = 0.2

	// quickness saturates at this many minutes: anything at or under it is a
	// full quick win.
	quickWinMinutes   = 15
	defaultTaskMin    = 30
	maxConsideredMins = 240
)

func severityScore(s mindmap.Severity) float64 {
	switch s {
	case mindmap.SeverityLow:
		return 1.0 / 3.0
	case mindmap.SeverityMedium:
		return 2.0 / 3.0
	case mindmap.SeverityHigh:
		return 1.0
	default:
		return 0
	}
}

// quicknessScore is the capped inverse of the time estimate.
func quicknessScore(estimatedMin int) float64 {
	if estimatedMin <= 0 {
		estimatedMin = defaultTaskMin
	}
	if estimatedMin > maxConsideredMins {
		estimatedMin = maxConsideredMins
	}
	if estimatedMin <= quickWinMinutes {
		return 1
	}
	return float64(quickWinMinutes) / float64(estimatedMin)
}

// PriorityScore computes a task's [0,1] priority from its linked issue
// severity, the importance of the nodes it touches, and its estimated cost.
func PriorityScore(severity mindmap.Severity, importance float64, estimatedMin int) float64 {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	score := weightSeverity*severityScore(severity) +
		weightImportance*importance +
		weightQuickness*quicknessScore(estimatedMin)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// rankTasks sorts tasks by priority descending, preferring quicker tasks on
// equal scores, and truncates to the per-turn cap.
func rankTasks(tasks []Task, limit int) []Task {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].PriorityScore != tasks[j].PriorityScore {
			return tasks[i].PriorityScore > tasks[j].PriorityScore
		}
		return tasks[i].EstimatedTimeMin < tasks[j].EstimatedTimeMin
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}
