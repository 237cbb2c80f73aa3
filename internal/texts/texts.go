// internal/texts/texts.go
package texts

import (
	"math/rand"
	"strings"
)

// Sample kinds a room can be created with. Unknown kinds fall back to words.
const (
	KindWords       = "words"
	KindPunctuation = "punctuation"
	KindCode        = "code"
)

const wordListLength = 200

var commonWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "it",
	"for", "not", "on", "with", "he", "as", "you", "do", "at", "this",
	"but", "his", "by", "from", "they", "we", "say", "her", "she", "or",
	"an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"when", "make", "can", "like", "time", "no", "just", "him", "know",
	"take", "people", "into", "year", "your", "good", "some", "could",
	"them", "see", "other", "than", "then", "now", "look", "only", "come",
	"its", "over", "think", "also", "back", "after", "use", "two", "how",
	"our", "work", "first", "well", "way", "even", "new", "want", "because",
	"any", "these", "give", "day", "most", "us",
}

var punctuationPhrases = []string{
	"Wait, what happened here?",
	"It's not over yet; keep going!",
	"The results (all of them) were surprising.",
	"\"Practice makes perfect,\" she said.",
	"Lists need commas, semicolons, and periods.",
	"Don't stop now -- you're almost there.",
	"Is this the right answer, or isn't it?",
	"Speed matters; accuracy matters more.",
	"One, two, three... and we're off!",
	"He asked: \"Who types faster, you or me?\"",
	"Careful! Exclamation points demand attention.",
	"Brackets [like these] appear rarely, but they count.",
}

var codeSnippets = map[string][]string{
	"JavaScript": {
		"function debounce(fn, ms) {\n  let timer;\n  return (...args) => {\n    clearTimeout(timer);\n    timer = setTimeout(() => fn(...args), ms);\n  };\n}",
		"const unique = (arr) => [...new Set(arr)];",
		"async function fetchJSON(url) {\n  const res = await fetch(url);\n  if (!res.ok) throw new Error(res.statusText);\n  return res.json();\n}",
		"const total = items.reduce((sum, item) => sum + item.price, 0);",
	},
	"Python": {
		"def fib(n):\n    a, b = 0, 1\n    for _ in range(n):\n        a, b = b, a + b\n    return a",
		"squares = {x: x * x for x in range(10)}",
		"with open(path) as f:\n    lines = [line.strip() for line in f]",
	},
	"Go": {
		"func max(a, b int) int {\n\tif a > b {\n\t\treturn a\n\t}\n\treturn b\n}",
		"for i, v := range values {\n\tsum += v * weights[i]\n}",
		"ch := make(chan int, 8)\ngo func() { ch <- compute() }()",
	},
}

// Generate produces the immutable text a room races on. kind selects the
// sample family; language only applies to code samples and falls back to
// JavaScript when unknown.
func Generate(kind, language string) string {
	switch kind {
	case KindPunctuation:
		return strings.Join(shuffled(punctuationPhrases), " ")
	case KindCode:
		snippets, ok := codeSnippets[language]
		if !ok {
			snippets = codeSnippets["JavaScript"]
		}
		return strings.Join(shuffled(snippets), "\n\n")
	default:
		return wordList(wordListLength)
	}
}

func wordList(count int) string {
	words := make([]string, count)
	for i := range words {
		words[i] = commonWords[rand.Intn(len(commonWords))]
	}
	return strings.Join(words, " ")
}

func shuffled(src []string) []string {
	out := make([]string, len(src))
	copy(out, src)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
