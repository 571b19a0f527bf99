package transit

import (
	"strings"
)

// GetBits reads length bits (at most 64) starting at bit offset start, most
// significant bit of data[0] first. It panics if the range is outside data,
// like the encoding/binary accessors do.
func GetBits(data []byte, start, length int) uint64 {
	if length < 0 || length > 64 || start < 0 || start+length > len(data)*8 {
		panic("transit: bit range out of bounds")
	}
	var v uint64
	for i := start; i < start+length; i++ {
		bit := data[i/8] >> (7 - uint(i%8)) & 1
		v = v<<1 | uint64(bit)
	}
	return v
}

// SignExtend interprets the low bits of v as a two's-complement number.
func SignExtend(v uint64, bits int) int64 {
	shift := 64 - uint(bits)
	return int64(v<<shift) >> shift
}

// Reverse returns a reversed copy of b.
func Reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// LuhnDigit returns the Luhn check digit for a string of decimal digits.
// Non-digit characters are ignored.
func LuhnDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			continue
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return (10 - sum%10) % 10
}

// LuhnValid reports whether the last digit of s is the Luhn check digit of
// the digits before it.
func LuhnValid(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 2 {
		return false
	}
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		return false
	}
	return LuhnDigit(s[:len(s)-1]) == int(last-'0')
}

// GroupDigits splits s into space-separated groups of the given sizes. Any
// remainder forms a final group.
func GroupDigits(s string, sizes ...int) string {
	var parts []string
	for _, n := range sizes {
		if len(s) <= n {
			break
		}
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
