package oracle

import "errors"

// ErrSentinelMatched is returned by Matcher.Write once the sentinel has been
// seen, so that io.Copy stops reading the rest of the body
var ErrSentinelMatched = errors.New("sentinel matched")

// Matcher looks for a fixed byte sequence in a stream fed to it in arbitrary
// chunks. It holds only the number of sentinel bytes matched so far, so a
// match split across any number of writes is still found.
type Matcher struct {
	sentinel []byte
	fail     []int
	matched  int
	found    bool
	n        int64
}

// NewMatcher returns a matcher for sentinel, which must not be empty
func NewMatcher(sentinel []byte) *Matcher {
	m := &Matcher{sentinel: append([]byte(nil), sentinel...)}
	m.fail = failure(m.sentinel)
	return m
}

// failure computes, for each prefix length, the length of the longest proper
// prefix of s that is also a suffix of it
func failure(s []byte) []int {
	f := make([]int, len(s)+1)
	k := 0
	for i := 1; i < len(s); i++ {
		for k > 0 && s[i] != s[k] {
			k = f[k]
		}
		if s[i] == s[k] {
			k++
		}
		f[i+1] = k
	}
	return f
}

// Write consumes p. After the sentinel has been seen it returns the number of
// bytes consumed up to the end of the match and ErrSentinelMatched.
func (m *Matcher) Write(p []byte) (int, error) {
	if m.found {
		return 0, ErrSentinelMatched
	}
	for i, b := range p {
		// Fall back to the longest partial match that is still valid
		for m.matched > 0 && b != m.sentinel[m.matched] {
			m.matched = m.fail[m.matched]
		}
		if b == m.sentinel[m.matched] {
			m.matched++
		}
		if m.matched == len(m.sentinel) {
			m.found = true
			m.n += int64(i + 1)
			return i + 1, ErrSentinelMatched
		}
	}
	m.n += int64(len(p))
	return len(p), nil
}

// Found reports whether the sentinel has been seen
func (m *Matcher) Found() bool {
	return m.found
}

// Consumed returns the number of bytes scanned
func (m *Matcher) Consumed() int64 {
	return m.n
}

// Reset clears all match state so the matcher can scan a new stream
func (m *Matcher) Reset() {
	m.matched = 0
	m.found = false
	m.n = 0
}
