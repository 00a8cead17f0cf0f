package utils

import (
	"crypto/rand"
	"io"
)

// RoomCodeAlphabet leaves out characters that are easy to misread.
const RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const RoomCodeLength = 6

// GenerateRoomCode creates a cryptographically random pairing code.
func GenerateRoomCode() (string, error) {
	bytes := make([]byte, RoomCodeLength)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	// 256 is a multiple of len(RoomCodeAlphabet), so the modulo is unbiased.
	for i, b := range bytes {
		bytes[i] = RoomCodeAlphabet[int(b)%len(RoomCodeAlphabet)]
	}
	return string(bytes), nil
}
