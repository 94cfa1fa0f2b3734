package hta

import (
	"context"

	"forest/internal/embedding"
	"forest/internal/logging"
	"forest/internal/vector"
)

// RelevanceClass buckets an exploration topic against the tree's domain.
type RelevanceClass string

const (
	RelevanceInScope  RelevanceClass = "in-scope"
	RelevanceAdjacent RelevanceClass = "adjacent"
	RelevanceOffTopic RelevanceClass = "off-topic"
)

// Relevance is the exploration-relevance verdict for a user topic.
type Relevance struct {
	Score          float64        `json:"score"` // [0,1]
	Class          RelevanceClass `json:"class"`
	SemanticScore  float64        `json:"semantic_score"`
	KeywordOverlap float64        `json:"keyword_overlap"`
	NearestBranch  string         `json:"nearest_branch,omitempty"`
}

// CheckRelevance scores a user topic against the tree's domain
// boundaries: semantic similarity over the project's branch vectors
// blended with keyword overlap. When the vector side is unavailable the
// keyword overlap carries the whole score.
func (s *Store) CheckRelevance(ctx context.Context, project string, tree *Tree, topic string) Relevance {
	overlap := keywordOverlap(topic, tree.DomainBoundaries)

	semantic, nearest := s.branchSimilarity(ctx, project, topic)
	var score float64
	if semantic < 0 {
		score = overlap
		semantic = 0
	} else {
		score = 0.6*semantic + 0.4*overlap
	}

	return Relevance{
		Score:          score,
		Class:          classifyRelevance(score),
		SemanticScore:  semantic,
		KeywordOverlap: overlap,
		NearestBranch:  nearest,
	}
}

// branchSimilarity returns the best cosine score over the project's
// branch vectors, or -1 when the vector path cannot answer.
func (s *Store) branchSimilarity(ctx context.Context, project, topic string) (float64, string) {
	if s.index == nil || s.embed == nil {
		return -1, ""
	}
	vec, err := s.embed.Embed(ctx, topic)
	if err != nil {
		logging.HTA("relevance embed failed: %v", err)
		return -1, ""
	}
	matches, err := s.index.Query(vec, vector.QueryOpts{
		K:      1,
		Filter: map[string]string{"kind": "branch", "project": project},
	})
	if err != nil {
		logging.HTA("relevance query failed: %v", err)
		return -1, ""
	}
	if len(matches) == 0 {
		return 0, ""
	}
	return matches[0].Score, matches[0].Metadata["branch"]
}

// keywordOverlap is the fraction of the topic's significant tokens that
// appear among the domain boundary tokens.
func keywordOverlap(topic string, boundaries []string) float64 {
	boundaryTokens := make(map[string]bool)
	for _, b := range boundaries {
		for _, t := range embedding.Tokenize(b) {
			boundaryTokens[t] = true
		}
	}

	var total, hit int
	for _, t := range embedding.Tokenize(topic) {
		if stopwords[t] {
			continue
		}
		total++
		if boundaryTokens[t] {
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

func classifyRelevance(score float64) RelevanceClass {
	switch {
	case score >= 0.55:
		return RelevanceInScope
	case score >= 0.25:
		return RelevanceAdjacent
	default:
		return RelevanceOffTopic
	}
}
