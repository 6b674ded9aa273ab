package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOf_KeyOrderIndependent(t *testing.T) {
	a, err := fingerprintOf(`{"age": 42, "city": "Oslo"}`)
	require.NoError(t, err)
	b, err := fingerprintOf(`{"city": "Oslo", "age": 42}`)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
}

func TestFingerprintOf_RejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`null`, `[1,2]`, `{"a":`} {
		_, err := fingerprintOf(raw)
		assert.Error(t, err, raw)
	}
}

func TestFingerprintOf_LargeIntegersStayDistinct(t *testing.T) {
	a, err := fingerprintOf(`{"id": 9007199254740993}`)
	require.NoError(t, err)
	b, err := fingerprintOf(`{"id": 9007199254740992}`)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
