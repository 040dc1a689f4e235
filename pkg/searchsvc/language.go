package searchsvc

import "unicode"

// DetectLanguage guesses the query language from its script. Latin-script
// text defaults to english; the result is a lowercase language name the
// prompts embed verbatim.
func DetectLanguage(text string) string {
	counts := map[string]int{}
	total := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			counts["russian"]++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			counts["japanese"]++
		case unicode.Is(unicode.Hangul, r):
			counts["korean"]++
		case unicode.Is(unicode.Han, r):
			counts["chinese"]++
		case unicode.Is(unicode.Arabic, r):
			counts["arabic"]++
		case unicode.Is(unicode.Greek, r):
			counts["greek"]++
		case unicode.Is(unicode.Devanagari, r):
			counts["hindi"]++
		case unicode.Is(unicode.Thai, r):
			counts["thai"]++
		case unicode.Is(unicode.Hebrew, r):
			counts["hebrew"]++
		}
	}
	if total == 0 {
		return "english"
	}

	best, bestCount := "", 0
	for lang, count := range counts {
		if count > bestCount {
			best, bestCount = lang, count
		}
	}
	// Japanese text mixes kana with Han characters; any kana wins.
	if counts["japanese"] > 0 && best == "chinese" {
		best = "japanese"
	}
	if best == "" || bestCount*5 < total {
		return "english"
	}
	return best
}
