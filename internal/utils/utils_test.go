package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, RoomCodeLength)
		assert.True(t, IsValidRoomCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}

func TestIsValidRoomCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC234", true},
		{"WXYZ", true},
		{"abc234", false},
		{"ABC", false},
		{"ABCDEFGHJKLMNPQRS", false},
		{"ABC0O1", false},
		{"AB C2", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidRoomCode(tt.code), tt.code)
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, "ABC234", NormalizeRoomCode("  abc234 "))
}
