package captcha

import (
	"strconv"
	"strings"
)

const (
	fnvOffsetBasis uint32 = 0x811C9DC5
	fnvPrime       uint32 = 0x01000193
)

// FNV1a is the 32-bit FNV-1a hash of the UTF-8 bytes of seed.
func FNV1a(seed string) uint32 {
	h := fnvOffsetBasis
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= fnvPrime
	}
	return h
}

// PRNG expands seed into length lowercase hex characters using a 32-bit
// xorshift generator seeded with FNV1a(seed). The output must match the
// platform's generator bit for bit: shifts are 13, 17, 5 in that order.
func PRNG(seed string, length int) string {
	if length <= 0 {
		return ""
	}
	state := FNV1a(seed)
	var b strings.Builder
	b.Grow(length + 8)
	var buf [8]byte
	for b.Len() < length {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		b.Write(hex8(&buf, state))
	}
	return b.String()[:length]
}

// hex8 renders v as exactly 8 lowercase hex digits.
func hex8(buf *[8]byte, v uint32) []byte {
	const digits = "0123456789abcdef"
	for i := 7; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return buf[:]
}

// SubChallenge is one derived proof-of-work puzzle.
type SubChallenge struct {
	Index  int // 1-based, as issued by the platform
	Salt   string
	Target string
}

// Derive expands a challenge token into its c sub-challenges, in issue order.
func Derive(token string, c, saltLen, difficulty int) []SubChallenge {
	if c <= 0 {
		return nil
	}
	out := make([]SubChallenge, c)
	for i := 1; i <= c; i++ {
		seed := token + strconv.Itoa(i)
		out[i-1] = SubChallenge{
			Index:  i,
			Salt:   PRNG(seed, saltLen),
			Target: PRNG(seed+"d", difficulty),
		}
	}
	return out
}
