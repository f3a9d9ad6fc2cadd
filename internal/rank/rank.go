// Package rank generates fractional-index sort keys: strings that order
// siblings lexicographically and always leave room to insert a new key
// between any two existing ones without renumbering.
package rank

import "strings"

// Keys are base-36 fractions over this alphabet. A key "ai" reads as the
// fraction 0.ai in base 36. Callers compare keys with ordinary string
// comparison only.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	base = len(alphabet)
	// midDigit is the digit at the middle of the alphabet.
	midDigit = base / 2
	// afterDigit sits at roughly 3/4 of the alphabet, leaving more room
	// below a fresh tail key than above it.
	afterDigit = (base * 3) / 4
)

// Initial returns the fixed starting key for the first item under a
// parent, chosen at the midpoint of the key space so both Before and
// After have room without immediate key growth.
func Initial() string {
	return string(alphabet[midDigit])
}

// Between returns a key strictly between a and b. Precondition: a < b
// lexicographically. When the two keys are too close for a base-36
// midpoint to fit, it falls back to appending a middle digit to a.
func Between(a, b string) string {
	m := midpoint(a, b)
	if a < m && m < b {
		return m
	}
	return a + string(alphabet[midDigit])
}

// Before returns a key strictly less than a by halving it against the
// bottom of the key space. Falls back to prefixing the lowest digit when
// halving cannot produce a smaller key.
func Before(a string) string {
	m := midpoint("", a)
	if m < a {
		return m
	}
	return string(alphabet[0]) + a
}

// After returns a key strictly greater than a. This is O(1) but grows
// the key by one digit per call; call sites that know both neighbors
// should prefer Between.
func After(a string) string {
	return a + string(alphabet[afterDigit])
}

// Sequence produces n ascending keys between the optional bounds before
// and after (either may be empty). With an upper bound present, each key
// is the midpoint between a moving lower bound and that upper bound;
// without one, keys are appended with After.
func Sequence(n int, before, after string) []string {
	out := make([]string, 0, n)
	lo := before
	for i := 0; i < n; i++ {
		var k string
		switch {
		case after != "":
			if lo == "" {
				k = midpoint("", after)
				if k >= after {
					k = string(alphabet[0]) + after
				}
			} else {
				k = Between(lo, after)
			}
		case lo == "":
			k = Initial()
		default:
			k = After(lo)
		}
		out = append(out, k)
		lo = k
	}
	return out
}

// midpoint computes (a+b)/2 treating both keys as base-36 fractions.
// The keys are padded to equal length with the lowest digit, summed
// digit-wise with carry, and the sum halved with the remainder tracked
// into one extra trailing digit when needed.
func midpoint(a, b string) string {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	da := digits(a, n)
	db := digits(b, n)

	// Digit-wise sum, least significant first carry.
	sum := make([]int, n)
	carry := 0
	for i := n - 1; i >= 0; i-- {
		s := da[i] + db[i] + carry
		sum[i] = s % base
		carry = s / base
	}

	// Halve, feeding the overflow carry in from the top and the final
	// remainder out into one extra trailing digit.
	out := make([]int, n)
	rem := carry
	for i := 0; i < n; i++ {
		cur := rem*base + sum[i]
		out[i] = cur / 2
		rem = cur % 2
	}

	var sb strings.Builder
	for _, d := range out {
		sb.WriteByte(alphabet[d])
	}
	if rem != 0 {
		sb.WriteByte(alphabet[midDigit])
	}
	return sb.String()
}

// digits converts key to a digit slice of length n, padding with the
// lowest digit. Characters outside the alphabet map to the lowest digit.
func digits(key string, n int) []int {
	out := make([]int, n)
	for i := 0; i < len(key) && i < n; i++ {
		out[i] = digitValue(key[i])
	}
	return out
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return 0
	}
}
