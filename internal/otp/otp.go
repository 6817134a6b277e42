// Package otp issues the numeric one-time codes bound to change requests.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// ErrInvalidLength is returned for code lengths outside 4..10.
var ErrInvalidLength = errors.New("otp length must be between 4 and 10")

var ten = big.NewInt(10)

// GenerateCode returns a numeric code of the given length (e.g. "042917").
// Uses crypto/rand; each digit is drawn uniformly.
func GenerateCode(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", ErrInvalidLength
	}
	s := make([]byte, length)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// WellFormed reports whether code has exactly length ASCII digits.
func WellFormed(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
