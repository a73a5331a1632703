// Package rank scores documents against keyword or regex queries with
// facet filtering and a linear recency boost.
//
// It is an in-memory scan with no index build step — deliberate at the
// corpus sizes this system targets (low hundreds of thousands of
// messages) — and is independent of the storage layer.
package rank

import (
	"regexp"
	"sort"
	"strings"
)

// Field weights. Title matches count most, raw message body least.
const (
	weightTitle    = 3.0
	weightSystem   = 2.0
	weightToolJSON = 1.25
	weightBody     = 1.0
)

const (
	// boostHorizonDays is where the recency boost decays to zero.
	boostHorizonDays = 180
	// boostFactor is the maximum score multiplier contribution.
	boostFactor = 0.25

	msPerDay = 86_400_000
)

// Document is one searchable unit: a message with its conversation title
// and optional system/tool payloads.
type Document struct {
	ID             int64
	ConversationID int64
	Title          string
	Body           string
	SystemText     string
	ToolJSON       string
	Role           string
	Vendor         string
	SourceID       string
	Timestamp      int64 // epoch ms; zero means no recency boost
}

// Facets filter documents before scoring. A zero value means "no filter"
// for that dimension. Documents failing any facet are excluded entirely.
type Facets struct {
	Vendor    string
	Role      string
	DateFrom  int64 // epoch ms, inclusive
	DateTo    int64 // epoch ms, inclusive
	SourceIDs []string
}

// Result pairs a document with its final score.
type Result struct {
	Document Document
	Score    float64
}

// Options controls query interpretation.
type Options struct {
	// Regex treats the query as a single case-insensitive regular
	// expression instead of whitespace-separated keywords.
	Regex bool
	// NowMs anchors the recency boost; zero disables boosting.
	NowMs int64
}

// Search scores documents against the query and returns those with a
// positive score, descending, ties broken by input order.
func Search(docs []Document, query string, facets Facets, opts Options) []Result {
	scorer := newScorer(query, opts.Regex)

	var results []Result
	for _, doc := range docs {
		if !facets.match(doc) {
			continue
		}
		raw := scorer.score(doc)
		if raw <= 0 {
			continue
		}
		results = append(results, Result{Document: doc, Score: raw * recencyMultiplier(doc.Timestamp, opts.NowMs)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func (f Facets) match(doc Document) bool {
	if f.Vendor != "" && doc.Vendor != f.Vendor {
		return false
	}
	if f.Role != "" && doc.Role != f.Role {
		return false
	}
	if f.DateFrom != 0 && doc.Timestamp < f.DateFrom {
		return false
	}
	if f.DateTo != 0 && doc.Timestamp > f.DateTo {
		return false
	}
	if len(f.SourceIDs) > 0 {
		found := false
		for _, id := range f.SourceIDs {
			if doc.SourceID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// recencyMultiplier returns 1 + 0.25*boost where boost decays linearly
// from 1 (now) to 0 (180 days old). Older documents are never penalized
// below 1.0.
func recencyMultiplier(tsMs, nowMs int64) float64 {
	if tsMs == 0 || nowMs == 0 {
		return 1
	}
	ageDays := float64(nowMs-tsMs) / msPerDay
	boost := 1 - ageDays/boostHorizonDays
	if boost < 0 {
		boost = 0
	}
	if boost > 1 {
		boost = 1
	}
	return 1 + boostFactor*boost
}

// scorer holds the compiled form of a query.
type scorer struct {
	tokens []*regexp.Regexp // keyword mode: one boundary-anchored pattern per token
	re     *regexp.Regexp   // regex mode; nil when the pattern failed to compile
	regex  bool
}

func newScorer(query string, regexMode bool) scorer {
	if regexMode {
		// An invalid regex must not abort the query: it degrades to
		// matching nothing.
		re, err := regexp.Compile("(?i)" + query)
		if err != nil {
			re = nil
		}
		return scorer{re: re, regex: true}
	}

	var tokens []*regexp.Regexp
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(tok) + `\b`)
		if err != nil {
			continue
		}
		tokens = append(tokens, re)
	}
	return scorer{tokens: tokens}
}

func (s scorer) score(doc Document) float64 {
	fields := []struct {
		text   string
		weight float64
	}{
		{doc.Title, weightTitle},
		{doc.SystemText, weightSystem},
		{doc.ToolJSON, weightToolJSON},
		{doc.Body, weightBody},
	}

	if s.regex {
		if s.re == nil {
			return 0
		}
		// Regex mode contributes the field weight once per matching
		// field, not per occurrence.
		var total float64
		for _, f := range fields {
			if f.text != "" && s.re.MatchString(f.text) {
				total += f.weight
			}
		}
		return total
	}

	var total float64
	for _, tok := range s.tokens {
		for _, f := range fields {
			if f.text == "" {
				continue
			}
			total += float64(len(tok.FindAllStringIndex(f.text, -1))) * f.weight
		}
	}
	return total
}
