package identity

// Near-duplicate detection. This is a soft signal used for heuristic
// de-noising only — the hard dedup barrier is the record store's
// uniqueness constraint, never this.

const (
	// duplicateWindowMs is how far apart two timestamps may be for the
	// messages to still count as the same turn seen twice.
	duplicateWindowMs = 60_000

	// duplicatePrefixLen is how much normalized text is compared.
	duplicatePrefixLen = 100

	// duplicateSimilarity is the normalized-Levenshtein cutoff.
	duplicateSimilarity = 0.8
)

// LikelyDuplicate reports whether two messages are probably the same turn
// captured twice: same role, timestamps within 60 seconds, and the first
// 100 normalized characters more than 80% similar.
func LikelyDuplicate(roleA string, tsA int64, textA, roleB string, tsB int64, textB string) bool {
	if roleA != roleB {
		return false
	}
	delta := tsA - tsB
	if delta < 0 {
		delta = -delta
	}
	if delta > duplicateWindowMs {
		return false
	}

	a := NormalizeText(textA)
	b := NormalizeText(textB)
	if len(a) > duplicatePrefixLen {
		a = a[:duplicatePrefixLen]
	}
	if len(b) > duplicatePrefixLen {
		b = b[:duplicatePrefixLen]
	}
	return similarity(a, b) > duplicateSimilarity
}

// similarity returns 1 - levenshtein(a,b)/max(len(a),len(b)).
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a two-row DP table.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minOf(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minOf(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
