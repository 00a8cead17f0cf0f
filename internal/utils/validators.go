package utils

import "strings"

// IsValidRoomCode accepts codes of 4 to 16 characters drawn from
// RoomCodeAlphabet.
func IsValidRoomCode(code string) bool {
	if len(code) < 4 || len(code) > 16 {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(RoomCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// NormalizeRoomCode upper-cases user input and trims surrounding spaces.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
