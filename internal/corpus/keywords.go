package corpus

import (
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a about above after again all am an and any are as at be because been " +
			"before being below between both but by can did do does doing down " +
			"during each few for from further had has have having he her here hers " +
			"him his how i if in into is it its itself just me more most my no nor " +
			"not now of off on once only or other our out over own same she should " +
			"so some such than that the their theirs them then there these they " +
			"this those through to too under until up very was we were what when " +
			"where which while who whom why will with you your yours") {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords tokenizes the passage and returns up to max keywords ranked
// by frequency, skipping stop words and tokens shorter than three letters.
func ExtractKeywords(text string, max int) []string {
	if strings.TrimSpace(text) == "" || max <= 0 {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil
	}

	freq := map[string]int{}
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if len(word) <= 2 || !isAlpha(word) {
			continue
		}
		if _, skip := stopWords[word]; skip {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
