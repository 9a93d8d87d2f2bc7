package utils

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGenerateIDUsesPrefix(t *testing.T) {
	id := GenerateID("synth")
	assert.True(t, strings.HasPrefix(id, "synth_"))
	assert.NotEqual(t, id, GenerateID("synth"))
}

func TestGenerateControllerIDCarriesRolePrefix(t *testing.T) {
	id := GenerateControllerID()
	assert.True(t, strings.HasPrefix(id, "controller-"))
}

func TestGeneratedIDSuffixesAreUUIDs(t *testing.T) {
	_, err := uuid.Parse(strings.TrimPrefix(GenerateSynthID(), "synth_"))
	assert.NoError(t, err)

	_, err = uuid.Parse(strings.TrimPrefix(GenerateControllerID(), "controller-"))
	assert.NoError(t, err)

	key := GenerateMailboxKeyID()
	assert.Len(t, key, 20+1+36)
	_, err = uuid.Parse(key[21:])
	assert.NoError(t, err)
}

func TestMailboxKeyIDsSortInGenerationOrder(t *testing.T) {
	keys := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		keys = append(keys, GenerateMailboxKeyID())
		time.Sleep(time.Millisecond)
	}

	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	assert.Equal(t, keys, sorted, "lexical order must match generation order")
}
