// Package summary builds and persists the bounded per-thread context digest
// that is prepended to outbound provider prompts.
package summary

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"aihub/pkg/domain"
)

const (
	// Window is the number of most recent messages folded into a summary.
	Window = 15
	// MaxLength bounds the summary text, in characters.
	MaxLength = 500

	termsPerMessage = 3
	termsPerGroup   = 5
	minTermLength   = 4
	ellipsis        = "..."
)

var stopWords = toSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by",
	"is", "are", "was", "were", "be", "been", "have", "has", "had", "do", "does", "did",
	"will", "would", "could", "should", "may", "might", "can",
	"this", "that", "these", "those",
	"i", "you", "he", "she", "it", "we", "they", "me", "him", "her", "us", "them",
)

type intentRule struct {
	needles []string
	label   string
}

// Order matters: the first rule with a matching needle wins.
var intentRules = []intentRule{
	{[]string{"explain", "what is", "how does"}, "seeking explanation"},
	{[]string{"help", "how to"}, "requesting help"},
	{[]string{"error", "problem", "issue"}, "troubleshooting"},
	{[]string{"code", "programming", "function"}, "programming assistance"},
	{[]string{"create", "build", "make"}, "creation request"},
	{[]string{"compare", "difference", "vs"}, "comparison request"},
	{[]string{"example", "show me"}, "example request"},
}

// Build computes the digest for messages, which must already be in
// chronological order. It returns the text and how many messages were folded in.
func Build(messages []domain.Message) (string, int) {
	if len(messages) > Window {
		messages = messages[len(messages)-Window:]
	}
	var userTexts, assistantTexts []string
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			userTexts = append(userTexts, msg.Content)
		case domain.RoleAssistant:
			assistantTexts = append(assistantTexts, msg.Content)
		}
	}

	var b strings.Builder
	b.WriteString("Recent conversation context: ")
	if terms := Topics(userTexts); len(terms) > 0 {
		fmt.Fprintf(&b, "User discussed: %s. ", strings.Join(terms, ", "))
	}
	if terms := Topics(assistantTexts); len(terms) > 0 {
		fmt.Fprintf(&b, "AI provided: %s. ", strings.Join(terms, ", "))
	}
	fmt.Fprintf(&b, "Total messages: %d. ", len(messages))
	if len(userTexts) > 0 {
		fmt.Fprintf(&b, "Current focus: %s.", Intent(userTexts[len(userTexts)-1]))
	}
	return Truncate(b.String()), len(messages)
}

// Topics returns up to five representative terms for a group of messages.
// Each message contributes its three most frequent terms as candidates; the
// candidates are then ranked by frequency across the whole group.
func Topics(texts []string) []string {
	groupCounts := make(map[string]int)
	var candidates []string
	seen := make(map[string]bool)
	for _, text := range texts {
		tokens := terms(text)
		for _, tok := range tokens {
			groupCounts[tok]++
		}
		for _, term := range topByCount(tokens, termsPerMessage) {
			if !seen[term] {
				seen[term] = true
				candidates = append(candidates, term)
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return groupCounts[candidates[i]] > groupCounts[candidates[j]]
	})
	if len(candidates) > termsPerGroup {
		candidates = candidates[:termsPerGroup]
	}
	return candidates
}

// Intent labels a user message with the first matching rule, falling back to
// its first four words.
func Intent(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.label
			}
		}
	}
	words := strings.Fields(lower)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

// Truncate bounds text to MaxLength characters, replacing the tail with "..." when cut.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxLength-len(ellipsis)]) + ellipsis
}

func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTermLength || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// topByCount returns the n most frequent tokens; ties keep first-occurrence order.
func topByCount(tokens []string, n int) []string {
	counts := make(map[string]int, len(tokens))
	var order []string
	for _, tok := range tokens {
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\n', '\r', '\t', '.', ',', '!', '?', ';', ':', '(', ')', '[', ']', '{', '}', '"', '\'':
		return true
	}
	return false
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
