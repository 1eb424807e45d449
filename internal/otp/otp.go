// Package otp generates one-time login codes.
package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// GenerateCode returns a 6-digit numeric code drawn uniformly from
// [100000, 999999] using crypto/rand. A non-cryptographic source would be
// guessable within the attempt budget.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
