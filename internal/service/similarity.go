package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SimilarityService compares texts as keyword sets (Jaccard). It is pure
// and stateless, safe to share across goroutines.
type SimilarityService struct{}

func NewSimilarityService() *SimilarityService {
	return &SimilarityService{}
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "and", "are", "was", "were", "been", "being", "have", "has",
		"had", "does", "did", "doing", "will", "would", "shall", "should",
		"can", "could", "may", "might", "must", "you", "your", "yours",
		"she", "her", "hers", "him", "his", "its", "our", "ours", "they",
		"them", "their", "theirs", "this", "that", "these", "those", "with",
		"from", "into", "onto", "for", "about", "against", "between",
		"through", "during", "before", "after", "above", "below", "over",
		"under", "again", "then", "once", "here", "there", "all", "any",
		"both", "each", "few", "more", "most", "other", "some", "such",
		"nor", "not", "only", "own", "same", "than", "too", "very", "just",
		"but", "because", "until", "while", "out",
	} {
		stopWords[w] = struct{}{}
	}
}

// Tokens normalizes text to a set of lowercase tokens: punctuation is
// treated as a separator and tokens of length <= 2 are dropped. With
// dropStopWords the common English stop-word list is removed as well.
func (s *SimilarityService) Tokens(text string, dropStopWords bool) map[string]struct{} {
	out := make(map[string]struct{})
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		w := b.String()
		b.Reset()
		if utf8.RuneCountInString(w) <= 2 {
			return
		}
		if dropStopWords {
			if _, skip := stopWords[w]; skip {
				return
			}
		}
		out[w] = struct{}{}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// Jaccard returns |A∩B| / |A∪B|. Two empty sets compare as identical
// (1.0); exactly one empty set scores 0.0.
func (s *SimilarityService) Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity scores two raw texts in [0,1] without stop-word removal.
func (s *SimilarityService) Similarity(textA, textB string) float64 {
	return s.Jaccard(s.Tokens(textA, false), s.Tokens(textB, false))
}
