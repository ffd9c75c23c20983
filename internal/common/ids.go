// Package common provides utilities for generating identifiers and secure
// random material: card-host identifiers, auth challenges, and nonces.
package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// CardhostCodeLen is the length of the code portion of a card-host
	// identifier.
	CardhostCodeLen = 8

	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	chars   = letters + digits
)

// ChallengeSize is the byte length of card-host auth challenges.
const ChallengeSize = 32

// NewChallenge returns cryptographically secure random challenge bytes.
func NewChallenge() ([]byte, error) {
	buf := make([]byte, ChallengeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	return buf, nil
}

// NewCardhostId generates a card-host identifier of the form "H" followed by
// an airline-style alphanumeric code. These IDs are routing labels, not
// secrets; identity is carried by the host's public key.
func NewCardhostId() (string, error) {
	code, err := airlineCode(CardhostCodeLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate cardhost id: %w", err)
	}
	return "H" + code, nil
}

// secureRandomInt generates a cryptographically secure random number between
// 0 and max, rejecting values that would introduce modulo bias.
func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive, got %d", max)
	}

	limit := (math.MaxUint64 / uint64(max)) * uint64(max)

	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to generate random bytes: %w", err)
		}
		n := binary.BigEndian.Uint64(buf[:])
		if n < limit {
			if n > uint64(math.MaxInt) {
				continue
			}
			return int(n % uint64(max)), nil
		}
	}
}

// airlineCode generates a random alphanumeric string of a given length.
// The first character is always a letter.
func airlineCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	result := make([]byte, length)

	letterIdx, err := secureRandomInt(len(letters))
	if err != nil {
		return "", err
	}
	result[0] = letters[letterIdx]

	for i := 1; i < length; i++ {
		idx, err := secureRandomInt(len(chars))
		if err != nil {
			return "", err
		}
		result[i] = chars[idx]
	}

	return string(result), nil
}
