package hta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeGoalFamilies(t *testing.T) {
	gc := AnalyzeGoal("learn rust programming for network security", UserIntermediate)
	assert.True(t, gc.HasFamily(FamilyTechnical))
	assert.True(t, gc.HasFamily(FamilyExploratory), "'learn' marks exploratory intent")
	assert.False(t, gc.HasFamily(FamilyCreative))

	gc = AnalyzeGoal("master portrait photography", UserIntermediate)
	assert.True(t, gc.HasFamily(FamilyCreative))
	assert.True(t, gc.HasFamily(FamilyMastery))
}

func TestAnalyzeGoalComplexityBuckets(t *testing.T) {
	assert.Equal(t, BucketLow, AnalyzeGoal("try watercolors", UserIntermediate).Complexity)
	assert.Equal(t, BucketMedium, AnalyzeGoal("improve my portrait photography lighting skills", UserIntermediate).Complexity)
	assert.Equal(t, BucketHigh,
		AnalyzeGoal("design and optimize a comprehensive distributed system with advanced monitoring", UserIntermediate).Complexity)
}

func TestAnalyzeGoalTermsDropStopwords(t *testing.T) {
	gc := AnalyzeGoal("I want to learn the basics of jazz piano", UserIntermediate)
	assert.NotContains(t, gc.Terms, "i")
	assert.NotContains(t, gc.Terms, "want")
	assert.NotContains(t, gc.Terms, "the")
	assert.Contains(t, gc.Terms, "jazz")
	assert.Contains(t, gc.Terms, "piano")
}

func TestMaxUsefulDepth(t *testing.T) {
	cases := []struct {
		name  string
		goal  string
		level UserLevel
		want  int
	}{
		{"technical intermediate", "build a database engine", UserIntermediate, 5},
		{"technical beginner", "build a database engine", UserBeginner, 6},
		{"technical expert", "build a database engine", UserExpert, 4},
		{"exploratory", "explore pottery", UserIntermediate, 3},
		{"exploratory expert", "explore pottery", UserExpert, 2},
		{"plain creative", "improve my oil painting composition skills", UserIntermediate, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gc := AnalyzeGoal(tc.goal, tc.level)
			assert.Equal(t, tc.want, gc.MaxUsefulDepth)
		})
	}
}

func TestComplexityFromAnalysis(t *testing.T) {
	c := ComplexityFromAnalysis(AnalyzeGoal("try watercolors", UserIntermediate))
	assert.Equal(t, 3, c.Score)
	assert.Equal(t, ComplexitySimple, c.Level)

	c = ComplexityFromAnalysis(AnalyzeGoal("master portrait photography", UserIntermediate))
	assert.GreaterOrEqual(t, c.Score, 7, "mastery goals floor at 7")
	assert.Equal(t, LevelForScore(c.Score), c.Level)
}

func TestCleanBranchName(t *testing.T) {
	goal := "Master portrait photography"
	assert.Equal(t, "Lighting Techniques", CleanBranchName("Portrait Photography Lighting Techniques", goal))
	assert.Equal(t, "Composition Studies", CleanBranchName("Composition Studies", goal))
	// Goal words after a non-goal word stay put.
	assert.Equal(t, "Studio Portrait Sessions", CleanBranchName("Studio Portrait Sessions", goal))
	// A name made entirely of goal words keeps its last word.
	assert.Equal(t, "Photography", CleanBranchName("Portrait Photography", goal))
}
