package hta

import (
	"strings"

	"forest/internal/embedding"
)

// GoalFamily is a detected keyword family of the goal text.
type GoalFamily string

const (
	FamilyTechnical   GoalFamily = "technical"
	FamilyCreative    GoalFamily = "creative"
	FamilyProcess     GoalFamily = "process-oriented"
	FamilyMastery     GoalFamily = "mastery-focused"
	FamilyExploratory GoalFamily = "exploratory"
)

// ComplexityBucket coarsely grades a goal before any model sees it.
type ComplexityBucket string

const (
	BucketLow    ComplexityBucket = "low"
	BucketMedium ComplexityBucket = "medium"
	BucketHigh   ComplexityBucket = "high"
)

// UserLevel is the learner's self-assessed experience, extracted from the
// accumulated context.
type UserLevel string

const (
	UserBeginner     UserLevel = "beginner"
	UserIntermediate UserLevel = "intermediate"
	UserExpert       UserLevel = "expert"
)

// GoalCharacteristics is the deterministic analysis of a goal. It drives
// the fallback branch generator and the useful-depth heuristic, so the
// same goal text must always produce the same characteristics.
type GoalCharacteristics struct {
	Families       []GoalFamily
	Complexity     ComplexityBucket
	Terms          []string // significant goal tokens, stopwords removed
	MaxUsefulDepth int
}

var familyKeywords = map[GoalFamily][]string{
	FamilyTechnical: {
		"programming", "software", "code", "coding", "engineering", "database",
		"server", "api", "algorithm", "network", "security", "data", "machine",
		"development", "devops", "cloud", "rust", "python", "javascript", "go",
	},
	FamilyCreative: {
		"photography", "painting", "drawing", "design", "music", "writing",
		"art", "creative", "compose", "sculpt", "illustration", "film", "craft",
	},
	FamilyProcess: {
		"workflow", "process", "manage", "organize", "plan", "productivity",
		"method", "routine", "habit", "system", "operations",
	},
	FamilyMastery: {
		"master", "mastery", "expert", "professional", "advanced", "perfect",
		"excel", "proficient", "fluent",
	},
	FamilyExploratory: {
		"explore", "discover", "try", "learn", "introduction", "basics",
		"curious", "overview", "sample", "dabble",
	},
}

var complexQualifiers = []string{
	"advanced", "sophisticated", "comprehensive", "integrate", "analyze",
	"synthesize", "optimize",
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "with": true,
	"my": true, "i": true, "want": true, "how": true, "be": true,
	"become": true, "get": true, "learn": true, "master": true,
}

// AnalyzeGoal classifies a goal deterministically.
func AnalyzeGoal(goal string, userLevel UserLevel) GoalCharacteristics {
	tokens := embedding.Tokenize(goal)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	var families []GoalFamily
	for _, family := range []GoalFamily{FamilyTechnical, FamilyCreative, FamilyProcess, FamilyMastery, FamilyExploratory} {
		for _, kw := range familyKeywords[family] {
			if tokenSet[kw] {
				families = append(families, family)
				break
			}
		}
	}

	qualifiers := 0
	for _, q := range complexQualifiers {
		if tokenSet[q] {
			qualifiers++
		}
	}

	bucket := BucketMedium
	switch {
	case len(tokens) <= 4 && qualifiers == 0:
		bucket = BucketLow
	case len(tokens) > 10 || qualifiers >= 2:
		bucket = BucketHigh
	}

	var terms []string
	for _, t := range tokens {
		if !stopwords[t] {
			terms = append(terms, t)
		}
	}

	gc := GoalCharacteristics{
		Families:   families,
		Complexity: bucket,
		Terms:      terms,
	}
	gc.MaxUsefulDepth = maxUsefulDepth(gc, userLevel)
	return gc
}

// HasFamily reports membership in a detected family.
func (gc GoalCharacteristics) HasFamily(f GoalFamily) bool {
	for _, have := range gc.Families {
		if have == f {
			return true
		}
	}
	return false
}

// PrimaryTerm returns the most significant goal token, used to seed
// fallback branch names.
func (gc GoalCharacteristics) PrimaryTerm() string {
	// Prefer the longest term: short tokens tend to be connectives that
	// slipped past the stopword list.
	best := ""
	for _, t := range gc.Terms {
		if len(t) > len(best) {
			best = t
		}
	}
	return best
}

// maxUsefulDepth applies the depth heuristic:
// base 4; 6 for high complexity; capped at 3 for low/exploratory goals;
// 5 for technical or mastery goals; +1 beginner, -1 expert; final range
// [2, MaxDepth].
func maxUsefulDepth(gc GoalCharacteristics, userLevel UserLevel) int {
	depth := 4
	if gc.Complexity == BucketHigh {
		depth = 6
	}
	if gc.Complexity == BucketLow || gc.HasFamily(FamilyExploratory) {
		depth = 3
	}
	if gc.HasFamily(FamilyTechnical) || gc.HasFamily(FamilyMastery) {
		depth = 5
	}
	switch userLevel {
	case UserBeginner:
		depth++
	case UserExpert:
		depth--
	}
	if depth < 2 {
		depth = 2
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	return depth
}

// ComplexityFromAnalysis derives the stored Complexity record from the
// deterministic analysis. Used when the level-1 delegation cannot supply
// one (fallback path) and by the onboarding complexity gate.
func ComplexityFromAnalysis(gc GoalCharacteristics) Complexity {
	score := 5
	switch gc.Complexity {
	case BucketLow:
		score = 3
	case BucketHigh:
		score = 8
	}
	if gc.HasFamily(FamilyMastery) && score < 7 {
		score = 7
	}

	factors := make([]string, 0, len(gc.Families))
	for _, f := range gc.Families {
		factors = append(factors, string(f)+" goal")
	}

	return Complexity{
		Score:            score,
		Level:            LevelForScore(score),
		RecommendedDepth: gc.MaxUsefulDepth,
		Factors:          factors,
	}
}

// CleanBranchName strips tokens already present in the goal from the
// front of a branch name so titles read naturally ("Portrait Photography
// Lighting" under goal "Master portrait photography" becomes "Lighting").
// Goal words elsewhere in the name are preserved.
func CleanBranchName(branch, goal string) string {
	goalTokens := make(map[string]bool)
	for _, t := range embedding.Tokenize(goal) {
		goalTokens[t] = true
	}

	words := strings.Fields(branch)
	start := 0
	for start < len(words)-1 && goalTokens[strings.ToLower(strings.Trim(words[start], ",.:"))] {
		start++
	}
	cleaned := strings.Join(words[start:], " ")
	if cleaned == "" {
		return branch
	}
	return cleaned
}
