package core

import "unicode"

// SimilarityFunc scores two normalised names between 0 and 1.
type SimilarityFunc func(a, b string) float64

// DiceSimilarity is the Sørensen–Dice coefficient over character bigrams
// of a and b with whitespace removed. It is symmetric; identical non-empty
// strings score 1, an empty side scores 0 and other strings shorter than
// two runes score 0.
func DiceSimilarity(a, b string) float64 {
	ra, rb := stripSpace(a), stripSpace(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[[2]rune{ra[i], ra[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := [2]rune{rb[i], rb[i+1]}
		if bigrams[bg] > 0 {
			bigrams[bg]--
			intersection++
		}
	}

	return float64(2*intersection) / float64(len(ra)+len(rb)-2)
}

func stripSpace(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}
