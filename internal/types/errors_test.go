package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagOfThroughWrapChain(t *testing.T) {
	base := Validation("goal", "goal is required")
	wrapped := fmt.Errorf("onboarding: %w", fmt.Errorf("gate: %w", base))

	assert.Equal(t, TagValidation, TagOf(wrapped))
	assert.True(t, HasTag(wrapped, TagValidation))
	assert.False(t, HasTag(wrapped, TagTimeout))
}

func TestTagOfUntagged(t *testing.T) {
	assert.Equal(t, ErrorTag(""), TagOf(errors.New("plain")))
	assert.Equal(t, ErrorTag(""), TagOf(nil))
}

func TestIsMatchesOnTagIdentity(t *testing.T) {
	err := Timeout("req-1")
	assert.True(t, errors.Is(err, &TaggedError{Tag: TagTimeout}))
	assert.False(t, errors.Is(err, &TaggedError{Tag: TagConflict}))
}

func TestValidationNamesKey(t *testing.T) {
	err := Validation("energy_level", "must be between 1 and 5")
	assert.Contains(t, err.Error(), "energy_level")
	assert.Equal(t, "energy_level", err.Key)
}

func TestStorageUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage(cause, "failed to write %s", "hta.json")
	require.ErrorIs(t, err, cause)
	assert.Equal(t, TagStorage, TagOf(err))
}

func TestVectorUnavailableWithAndWithoutCause(t *testing.T) {
	assert.Equal(t, "vector index unavailable", VectorUnavailable(nil).Message)
	err := VectorUnavailable(errors.New("no such table"))
	assert.Contains(t, err.Message, "no such table")
}
