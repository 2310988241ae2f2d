package flow

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

var (
	topicsBlock    = regexp.MustCompile(`(?is)<topics>(.*?)</topics>`)
	topicSeparator = regexp.MustCompile(`[,\n]`)
	leadingInt     = regexp.MustCompile(`^\s*[-+]?\d+`)
	anyInt         = regexp.MustCompile(`\d+`)
)

// ParseTopics extracts the entries of the first <topics>...</topics> block in
// text (tag match is case-insensitive). Entries are separated by commas or
// newlines, trimmed, and empty ones are dropped. Without a block the result is
// an empty, non-nil slice.
func ParseTopics(text string) []string {
	topics := []string{}
	m := topicsBlock.FindStringSubmatch(text)
	if m == nil {
		return topics
	}
	for _, part := range topicSeparator.Split(m[1], -1) {
		if t := strings.TrimSpace(part); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// extractScore reads the integer score from a scoring flow output: the
// "score" output field when it holds a number, otherwise the last integer in
// the text.
func extractScore(out workflow.Output) (int, bool) {
	if v, ok := out.Extra["score"]; ok {
		if score, ok := scoreValue(v); ok {
			return score, true
		}
	}
	matches := anyInt.FindAllString(out.Text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	score, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return 0, false
	}
	return score, true
}

func scoreValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(math.Trunc(n)), true
	case string:
		digits := leadingInt.FindString(n)
		if digits == "" {
			return 0, false
		}
		score, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil {
			return 0, false
		}
		return score, true
	}
	return 0, false
}
