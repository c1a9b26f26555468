package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, "3_12", Key(12, 3))
	assert.Equal(t, Key(12, 3), Key(3, 12))
}

func TestParse(t *testing.T) {
	low, high, err := Parse("3_12")
	require.NoError(t, err)
	assert.Equal(t, uint(3), low)
	assert.Equal(t, uint(12), high)

	for _, bad := range []string{"", "3", "12_3", "3_3", "0_4", "a_b", "03_12", "3_12_5", "-1_2"} {
		_, _, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestOther(t *testing.T) {
	other, err := Other("3_12", 3)
	require.NoError(t, err)
	assert.Equal(t, uint(12), other)

	other, err = Other("3_12", 12)
	require.NoError(t, err)
	assert.Equal(t, uint(3), other)

	_, err = Other("3_12", 7)
	assert.ErrorIs(t, err, ErrNotParticipant)
}
