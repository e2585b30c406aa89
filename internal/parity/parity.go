// Package parity computes byte-wise XOR redundancy between two buffers.
//
// Inputs of different lengths are handled by treating the shorter one as if
// it were zero-extended to the longer length, which keeps either input
// recoverable from the other plus the parity.
package parity

import (
	"crypto/subtle"
	"fmt"
)

// Compute sets out[i] = a[i] ^ b[i]. All three slices must have the same
// length; anything else is a caller bug and panics.
func Compute(a, b, out []byte) {
	if len(a) != len(b) || len(out) != len(a) {
		panic(fmt.Sprintf("parity: Compute length mismatch: a=%d b=%d out=%d", len(a), len(b), len(out)))
	}
	subtle.XORBytes(out, a, b)
}

// ComputeUnequal XORs the shorter of a and b against the prefix of the longer
// and copies the rest of the longer verbatim. out must be as long as the
// longer input.
func ComputeUnequal(a, b, out []byte) {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(out) != len(longer) {
		panic(fmt.Sprintf("parity: ComputeUnequal output is %d bytes, want %d", len(out), len(longer)))
	}

	k := len(shorter)
	subtle.XORBytes(out[:k], shorter, longer[:k])
	copy(out[k:], longer[k:])
}

// Size is the parity length for inputs of length a and b.
func Size(a, b int) int {
	return max(a, b)
}

// Recover rebuilds an original of length n from the other input and the
// parity the two produced. parity must hold at least n bytes.
func Recover(other, parity []byte, n int) []byte {
	if len(parity) < n {
		panic(fmt.Sprintf("parity: Recover needs %d parity bytes, have %d", n, len(parity)))
	}
	other = other[:min(n, len(other))]
	out := make([]byte, n)
	ComputeUnequal(other, parity[:n], out)
	return out
}
