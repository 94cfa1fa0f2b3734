package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/types"
)

func TestValidate_RequiredPresent(t *testing.T) {
	s := Schema{"required": []interface{}{"goal_analysis", "domain_boundaries"}}
	err := Validate(map[string]interface{}{
		"goal_analysis":     map[string]interface{}{},
		"domain_boundaries": []interface{}{"lighting"},
	}, s)
	assert.NoError(t, err)
}

func TestValidate_MissingRequiredNamesKey(t *testing.T) {
	s := Schema{"required": []interface{}{"title", "description"}}
	err := Validate(map[string]interface{}{"title": "x"}, s)
	require.Error(t, err)
	var te *types.TaggedError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "description", te.Key)
	assert.Contains(t, te.Message, "description")
}

func TestValidate_TypeChecks(t *testing.T) {
	s := Schema{
		"required": []interface{}{"score"},
		"properties": map[string]interface{}{
			"score": map[string]interface{}{"type": "number"},
			"name":  map[string]interface{}{"type": "string"},
			"tags":  map[string]interface{}{"type": "array"},
			"flag":  map[string]interface{}{"type": "boolean"},
		},
	}

	assert.NoError(t, Validate(map[string]interface{}{"score": 7.0, "tags": []interface{}{}}, s))

	err := Validate(map[string]interface{}{"score": "high"}, s)
	require.Error(t, err)
	var te *types.TaggedError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "score", te.Key)
	assert.Contains(t, te.Message, "number")
}

func TestValidate_EnumMembership(t *testing.T) {
	s := Schema{
		"properties": map[string]interface{}{
			"focus": map[string]interface{}{"enum": []interface{}{"theory", "hands-on", "project", "balanced"}},
		},
	}

	assert.NoError(t, Validate(map[string]interface{}{"focus": "theory"}, s))

	err := Validate(map[string]interface{}{"focus": "vibes"}, s)
	require.Error(t, err)
	var te *types.TaggedError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "focus", te.Key)
}

func TestValidate_UnknownKeysAllowed(t *testing.T) {
	s := Schema{"required": []interface{}{"title"}}
	assert.NoError(t, Validate(map[string]interface{}{"title": "x", "surprise": 1}, s))
}

func TestValidate_EmptySchemaAcceptsAll(t *testing.T) {
	assert.NoError(t, Validate(map[string]interface{}{"anything": true}, nil))
}
