package hta

import "strings"

// FallbackBranches synthesizes strategic branches deterministically from
// the goal-characteristic analysis. Same goal text, same branches: the
// rest of the system depends on fallback runs being reproducible.
func FallbackBranches(gc GoalCharacteristics) []Branch {
	topic := topicFromTerms(gc.Terms)

	branches := []Branch{
		{
			Name:        topic + " Fundamentals",
			Description: "Core concepts and vocabulary of " + strings.ToLower(topic),
			Focus:       FocusTheory,
		},
		{
			Name:        "Hands-On " + topic + " Practice",
			Description: "Deliberate practice sessions applying " + strings.ToLower(topic) + " skills",
			Focus:       FocusHandsOn,
		},
	}

	switch {
	case gc.HasFamily(FamilyTechnical):
		branches = append(branches, Branch{
			Name:        topic + " Systems and Tooling",
			Description: "Tools, workflows and system design around " + strings.ToLower(topic),
			Focus:       FocusProject,
		})
	case gc.HasFamily(FamilyCreative):
		branches = append(branches, Branch{
			Name:        "Creative " + topic + " Projects",
			Description: "Portfolio projects exploring personal style in " + strings.ToLower(topic),
			Focus:       FocusProject,
		})
	case gc.HasFamily(FamilyProcess):
		branches = append(branches, Branch{
			Name:        topic + " Workflow Design",
			Description: "Designing and refining a repeatable " + strings.ToLower(topic) + " process",
			Focus:       FocusProject,
		})
	case gc.HasFamily(FamilyExploratory):
		branches = append(branches, Branch{
			Name:        "Exploring " + topic + " Directions",
			Description: "Sampling sub-areas of " + strings.ToLower(topic) + " to find what resonates",
			Focus:       FocusBalanced,
		})
	default:
		branches = append(branches, Branch{
			Name:        "Applied " + topic + " Projects",
			Description: "End-to-end projects that exercise " + strings.ToLower(topic) + " in realistic settings",
			Focus:       FocusProject,
		})
	}

	if gc.HasFamily(FamilyMastery) {
		branches = append(branches, Branch{
			Name:        "Advanced " + topic + " Techniques",
			Description: "Expert-level techniques and edge cases in " + strings.ToLower(topic),
			Focus:       FocusHandsOn,
		})
	}

	for i := range branches {
		branches[i].Priority = i + 1
		branches[i].DomainFocus = strings.ToLower(topic)
		branches[i].Rationale = "synthesized from goal characteristics"
	}
	return branches
}

// topicFromTerms title-cases the significant goal terms into a topic
// label, capped at three words.
func topicFromTerms(terms []string) string {
	if len(terms) == 0 {
		return "Learning"
	}
	if len(terms) > 3 {
		terms = terms[:3]
	}
	words := make([]string, len(terms))
	for i, t := range terms {
		words[i] = titleWord(t)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
