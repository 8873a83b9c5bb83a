// Period detection for degenerate, repeating text.
package dsa

// FindExactPeriod returns the shortest proper prefix p of s such that
// repeating p and truncating to len(s) reproduces s. A trailing partial
// repeat is allowed ("ababa" has period "ab").
// Returns false when s has no proper period, including len(s) < 2.
// Works on runes, not bytes.
// Time Complexity: O(n) via the KMP failure function.
func FindExactPeriod(s string) (string, bool) {
	r := []rune(s)
	n := len(r)
	if n < 2 {
		return "", false
	}

	// fail[i] = length of the longest proper border of r[:i+1]
	fail := make([]int, n)
	k := 0
	for i := 1; i < n; i++ {
		for k > 0 && r[i] != r[k] {
			k = fail[k-1]
		}
		if r[i] == r[k] {
			k++
		}
		fail[i] = k
	}

	border := fail[n-1]
	if border == 0 {
		return "", false
	}
	return string(r[:n-border]), true
}

// FindBoundedPartialPeriod scans candidate period lengths 1..min(maxLen, n/2)
// in increasing order and returns the first prefix whose repetition,
// truncated to n, reproduces s. maxLen <= 0 means n/2.
// Time Complexity: O(n * maxLen)
func FindBoundedPartialPeriod(s string, maxLen int) (string, bool) {
	r := []rune(s)
	n := len(r)
	limit := n / 2
	if maxLen > 0 && maxLen < limit {
		limit = maxLen
	}

	for i := 1; i <= limit; i++ {
		if hasPeriod(r, i) {
			return string(r[:i]), true
		}
	}
	return "", false
}

// hasPeriod reports whether r[j] == r[j-p] for every j >= p.
func hasPeriod(r []rune, p int) bool {
	for j := p; j < len(r); j++ {
		if r[j] != r[j-p] {
			return false
		}
	}
	return true
}
