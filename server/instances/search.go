package instances

import (
	"regexp"
	"strings"

	"github.com/cyp0633/librecur/server/storage"
)

// A token is a run of characters other than whitespace, quotes and sentence
// punctuation, or a double-quoted phrase.
var searchTokenPattern = regexp.MustCompile(`[^\s"'.?!,]+|"([^"]*)"`)

// TokenizeSearchQuery splits a free-text query into lower-cased tokens.
// Quoted phrases stay whole; empty phrases are dropped.
func TokenizeSearchQuery(query string) []string {
	var tokens []string
	for _, m := range searchTokenPattern.FindAllStringSubmatch(query, -1) {
		token := m[0]
		if strings.HasPrefix(token, `"`) {
			token = m[1]
		}
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(token))
	}
	return tokens
}

// MatchesAll reports whether every token occurs, case-insensitively, in the
// event's title, description or location, or in an attendee's name or email.
func MatchesAll(tokens []string, ev *storage.Event, attendees []*storage.Attendee) bool {
	fields := []string{
		strings.ToLower(ev.Title),
		strings.ToLower(ev.Description),
		strings.ToLower(ev.Location),
	}
	for _, a := range attendees {
		fields = append(fields, strings.ToLower(a.Name), strings.ToLower(a.Email))
	}

	for _, token := range tokens {
		found := false
		for _, f := range fields {
			if strings.Contains(f, token) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
