package vector

import "fmt"

// Vector id scheme. Every mirrored entity gets a stable string id so the
// JSON metadata record and the vector can reference each other.

func GoalID(project string) string { return project + ":goal" }

func BranchID(project, branch string) string {
	return fmt.Sprintf("%s:branch:%s", project, branch)
}

func TaskID(project, task string) string {
	return fmt.Sprintf("%s:task:%s", project, task)
}

func LearningID(project, event string) string {
	return fmt.Sprintf("%s:learning:%s", project, event)
}

func BreakthroughID(project, insight string) string {
	return fmt.Sprintf("%s:breakthrough:%s", project, insight)
}
