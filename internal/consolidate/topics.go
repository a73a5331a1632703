package consolidate

import (
	"sort"
	"strings"
)

// topicCount is how many topics a bundle carries.
const topicCount = 5

// minTopicWordLen excludes short function words before the stop list is
// even consulted.
const minTopicWordLen = 4

// stopWords are common words that make useless topic labels.
var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true,
	"because": true, "been": true, "before": true, "being": true,
	"between": true, "both": true, "could": true, "does": true,
	"doing": true, "down": true, "each": true, "from": true,
	"have": true, "having": true, "here": true, "into": true,
	"just": true, "like": true, "make": true, "more": true,
	"most": true, "need": true, "only": true, "other": true,
	"over": true, "please": true, "same": true, "should": true,
	"some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true,
	"through": true, "under": true, "very": true, "want": true,
	"what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true,
	"your": true,
}

// ExtractTopics returns the top-n words by frequency across the texts,
// excluding stop words and words shorter than four characters. Ties
// break lexically, so the output is deterministic for the same input —
// an intentionally simple frequency heuristic, not a trained model.
func ExtractTopics(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, word := range tokenize(text) {
			if len(word) < minTopicWordLen || stopWords[word] {
				continue
			}
			counts[word]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}

// tokenize splits text into lowercase alphanumeric words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// topicRelevance scores how strongly a message relates to a topic word:
// occurrences of the word divided by the message's total word count.
func topicRelevance(text, topic string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if w == topic {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
