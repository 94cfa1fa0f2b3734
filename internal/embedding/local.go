package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEngine produces deterministic unit-norm embeddings by hashing
// token features into a fixed-size vector. The same input always yields
// the same output, which the rest of the system relies on: re-embedding
// a goal or task after restart lands on the identical vector.
//
// Features: unigrams, adjacent bigrams and character trigrams, each
// hashed into a dimension with a signed contribution. This is not a
// semantic model, but related texts share tokens and therefore overlap
// in feature space, which is enough for in-scope/adjacent/off-topic
// classification and frontier similarity ranking.
type LocalEngine struct {
	dims int
}

// NewLocalEngine creates a local deterministic engine.
func NewLocalEngine(dims int) *LocalEngine {
	if dims <= 0 {
		dims = 384
	}
	return &LocalEngine{dims: dims}
}

func (e *LocalEngine) Name() string    { return "local" }
func (e *LocalEngine) Dimensions() int { return e.dims }

// Embed generates a unit-norm vector for the text.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	tokens := Tokenize(text)

	for i, tok := range tokens {
		e.addFeature(vec, tok, 1.0)
		if i+1 < len(tokens) {
			e.addFeature(vec, tok+"_"+tokens[i+1], 0.5)
		}
		for j := 0; j+3 <= len(tok); j++ {
			e.addFeature(vec, "#"+tok[j:j+3], 0.25)
		}
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// addFeature hashes a feature into a dimension. A second hash decides the
// sign so collisions cancel rather than pile up.
func (e *LocalEngine) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// Tokenize lowercases and splits text on non-alphanumeric runes. Shared
// with the goal-characteristic analyzer so both sides agree on tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
