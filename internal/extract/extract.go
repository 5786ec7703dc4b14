// Package extract pulls hashtags, @-handles and tracked keywords out of raw
// platform text.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	hashtagPattern = regexp.MustCompile(`#\w+`)
	handlePattern  = regexp.MustCompile(`@\w+`)
)

// Result is everything the extractor found in one piece of text
type Result struct {
	Hashtags []string
	Handles  []string
	Keywords []string
}

// Extract runs all extractors over text. Keywords are the configured terms
// that occur in text, compared case-insensitively.
func Extract(text string, keywords []string) Result {
	return Result{
		Hashtags: Hashtags(text),
		Handles:  Handles(text),
		Keywords: MatchKeywords(text, keywords),
	}
}

// Hashtags returns the distinct hashtags in text, lowercased, in order of
// first appearance
func Hashtags(text string) []string {
	return uniqueLower(hashtagPattern.FindAllString(text, -1))
}

// Handles returns the distinct @-mentions in text, lowercased
func Handles(text string) []string {
	return uniqueLower(handlePattern.FindAllString(text, -1))
}

// MatchKeywords returns the keywords contained in text. The returned values
// keep the configured spelling.
func MatchKeywords(text string, keywords []string) []string {
	if len(keywords) == 0 || text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var matched []string

	for _, keyword := range keywords {
		k := strings.ToLower(strings.TrimSpace(keyword))
		if k == "" || seen[k] {
			continue
		}
		if strings.Contains(lower, k) {
			seen[k] = true
			matched = append(matched, keyword)
		}
	}

	return matched
}

// ContainsAny reports whether text contains any of the terms
func ContainsAny(text string, terms []string) bool {
	return len(MatchKeywords(text, terms)) > 0
}

// StripHTML converts an HTML fragment to plain text. Paragraphs and line
// breaks become newlines and inline code is wrapped in backticks.
func StripHTML(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return strings.TrimSpace(content)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "br", "div":
				b.WriteString("\n")
			case "code":
				b.WriteString("`")
			}
		}
	}
}

func uniqueLower(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tokens))
	unique := make([]string, 0, len(tokens))

	for _, token := range tokens {
		t := strings.ToLower(token)
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	return unique
}
