package lexical

import "strings"

// Stats summarises surface features of a transcript. The clinicians only
// consume WordCount today; the filler and unique counts feed the session
// analysis payload stored alongside recordings.
type Stats struct {
	WordCount   int     `json:"wordCount"`
	UniqueWords int     `json:"uniqueWords"`
	FillerCount int     `json:"fillerCount"`
	FillerRate  float64 `json:"fillerRate"`
}

var fillers = map[string]struct{}{
	"um": {}, "uh": {}, "erm": {}, "hmm": {}, "like": {}, "actually": {},
}

// Analyze computes transcript statistics. Punctuation is stripped per token
// so "well," and "well" count as the same word.
func Analyze(text string) Stats {
	var stats Stats
	seen := make(map[string]struct{})

	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.Trim(token, ".,!?;:\"'()-"))
		if word == "" {
			continue
		}
		stats.WordCount++
		if _, ok := seen[word]; !ok {
			seen[word] = struct{}{}
			stats.UniqueWords++
		}
		if _, ok := fillers[word]; ok {
			stats.FillerCount++
		}
	}

	if stats.WordCount > 0 {
		stats.FillerRate = float64(stats.FillerCount) / float64(stats.WordCount)
	}
	return stats
}
