package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models routinely wrap JSON in code fences, prepend prose, or leave
// trailing commas. The parser tries progressively looser readings.
var (
	codeFenceWholeRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceInnerRegex = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	lineCommentRegex   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxParseInput bounds the response size the parser will look at.
const maxParseInput = 1 << 20

// ParseResult is the outcome of a tolerant JSON parse.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
	// Strategy names the reading that succeeded
	Strategy string
}

type parseStrategy struct {
	name      string
	transform func(string) string
}

var parseStrategies = []parseStrategy{
	{"direct", func(s string) string { return s }},
	{"code_fence", removeCodeFences},
	{"cleanup", func(s string) string { return cleanupJSON(removeCodeFences(s)) }},
	{"extract", func(s string) string { return extractJSON(cleanupJSON(removeCodeFences(s))) }},
}

// Parse decodes model output into T, trying a direct decode first and then
// fence stripping, syntax cleanup and extraction from surrounding prose.
func Parse[T any](text string) ParseResult[T] {
	if len(text) > maxParseInput {
		return ParseResult[T]{Error: fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxParseInput)}
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseResult[T]{Error: "empty input"}
	}

	var firstErr error
	tried := make(map[string]bool, len(parseStrategies))
	for _, s := range parseStrategies {
		candidate := strings.TrimSpace(s.transform(trimmed))
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true

		var data T
		err := json.Unmarshal([]byte(candidate), &data)
		if err == nil {
			return ParseResult[T]{Success: true, Data: data, Strategy: s.name}
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	msg := "all JSON parsing strategies failed"
	if firstErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, firstErr)
	}
	return ParseResult[T]{Error: msg}
}

// ParseOrDefault returns fallback when the text cannot be parsed.
func ParseOrDefault[T any](text string, fallback T) T {
	if r := Parse[T](text); r.Success {
		return r.Data
	}
	return fallback
}

func removeCodeFences(text string) string {
	cleaned := codeFenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		if m := codeFenceInnerRegex.FindStringSubmatch(text); m != nil {
			cleaned = m[1]
		}
	}
	if len(cleaned) >= 2 && strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON drops comments and trailing commas and quotes bare keys.
// Single quotes are left alone so apostrophes in values survive.
func cleanupJSON(text string) string {
	cleaned := blockCommentRegex.ReplaceAllString(text, "")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = bareKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the outermost object or array out of mixed content.
// Whichever bracket opens first decides the shape so an array of objects
// is not reduced to its elements.
func extractJSON(text string) string {
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	if arr >= 0 && (obj < 0 || arr < obj) {
		if m := arrayRegex.FindString(text); m != "" {
			return m
		}
	}
	if m := objectRegex.FindString(text); m != "" {
		return m
	}
	return arrayRegex.FindString(text)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
