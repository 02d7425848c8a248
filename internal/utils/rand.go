package utils

import (
	"math/rand/v2"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandString returns n random lowercase alphanumerics, used for slug suffixes.
func RandString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.IntN(len(letterBytes))]
	}
	return string(b)
}
