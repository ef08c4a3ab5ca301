package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearity-app/clearity/internal/mindmap"
)

func TestPriorityScoreMonotonicInSeverity(t *testing.T) {
	low := PriorityScore(mindmap.SeverityLow, 0.5, 30)
	med := PriorityScore(mindmap.SeverityMedium, 0.5, 30)
	high := PriorityScore(mindmap.SeverityHigh, 0.5, 30)

	assert.Less(t, low, med)
	assert.Less(t, med, high)
}

func TestPriorityScoreRange(t *testing.T) {
	assert.GreaterOrEqual(t, PriorityScore(mindmap.SeverityNone, -5, 1000), 0.0)
	assert.LessOrEqual(t, PriorityScore(mindmap.SeverityHigh, 5, 1), 1.0)
}

func TestQuicknessSaturatesForQuickWins(t *testing.T) {
	assert.Equal(t, 1.0, quicknessScore(5))
	assert.Equal(t, 1.0, quicknessScore(15))
	assert.Less(t, quicknessScore(60), quicknessScore(30))

	// Above the cap every estimate scores the same.
	assert.Equal(t, quicknessScore(240), quicknessScore(999))
}

func TestQuicknessDefaultsMissingEstimate(t *testing.T) {
	assert.Equal(t, quicknessScore(defaultTaskMin), quicknessScore(0))
	assert.Equal(t, quicknessScore(defaultTaskMin), quicknessScore(-10))
}

func TestRankTasksOrderAndCap(t *testing.T) {
	tasks := []Task{
		{Name: "c", PriorityScore: 0.3, EstimatedTimeMin: 20},
		{Name: "a", PriorityScore: 0.9, EstimatedTimeMin: 30},
		{Name: "b", PriorityScore: 0.9, EstimatedTimeMin: 15},
		{Name: "d", PriorityScore: 0.5, EstimatedTimeMin: 45},
	}

	ranked := rankTasks(tasks, 3)

	assert.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Name, "equal scores prefer the quicker task")
	assert.Equal(t, "a", ranked[1].Name)
	assert.Equal(t, "d", ranked[2].Name)
}

func TestRankTasksNoCap(t *testing.T) {
	tasks := []Task{{Name: "a"}, {Name: "b"}}
	assert.Len(t, rankTasks(tasks, 0), 2)
}
