package lesson

import (
	"strings"
	"unicode"
)

// SplitSentences splits text into pieces of at most maxChars runes,
// breaking at sentence ends where possible and at word boundaries otherwise.
func SplitSentences(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return []string{text}
	}

	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, sent := range sentences(text) {
		for _, piece := range wrapWords(sent, maxChars) {
			if cur.Len() > 0 && len([]rune(cur.String()))+1+len([]rune(piece)) > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return out
}

// ChunkSentences groups the first sentences of text into at most limit
// chunks of three sentences each.
func ChunkSentences(text string, maxChars, limit int) []string {
	sents := sentences(text)
	var out []string
	for i := 0; i < len(sents) && len(out) < limit; i += 3 {
		end := i + 3
		if end > len(sents) {
			end = len(sents)
		}
		chunk := strings.Join(sents[i:end], " ")
		parts := SplitSentences(chunk, maxChars)
		if len(parts) > 0 {
			out = append(out, parts[0])
		}
	}
	return out
}

// sentences splits on '.', '!' or '?' followed by whitespace.
func sentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// wrapWords breaks an over-long sentence at word boundaries.
func wrapWords(s string, maxChars int) []string {
	if len([]rune(s)) <= maxChars {
		return []string{s}
	}
	var out []string
	var cur []rune
	for _, w := range strings.Fields(s) {
		wr := []rune(w)
		for len(wr) > maxChars {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			out = append(out, string(wr[:maxChars]))
			wr = wr[maxChars:]
		}
		if len(cur) > 0 && len(cur)+1+len(wr) > maxChars {
			out = append(out, string(cur))
			cur = nil
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, wr...)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
