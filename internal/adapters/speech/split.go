package speech

import (
	"strings"
	"unicode"
)

// chunkLimit — максимальная длина текста одного запроса к TTS в символах.
const chunkLimit = 2500

// SplitText режет текст на куски не длиннее limit символов.
// Разрез ищется сначала по концу предложения, затем по пробелу.
func SplitText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = chunkLimit
	}

	runes := []rune(trimmed)
	var parts []string
	for start := 0; start < len(runes); {
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		if start >= len(runes) {
			break
		}
		end := start + limit
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			break
		}

		split := lastBoundary(runes, start, end, isSentenceEnd)
		if split == -1 {
			split = lastBoundary(runes, start, end, unicode.IsSpace)
		}
		if split == -1 {
			split = end
		}

		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			parts = append(parts, chunk)
		}
		start = split
	}
	return parts
}

// lastBoundary возвращает позицию сразу после последнего подходящего символа в [start, end).
func lastBoundary(runes []rune, start, end int, match func(rune) bool) int {
	for i := end; i > start+1; i-- {
		if match(runes[i-1]) {
			return i
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
