// Package syncsvc pulls catalogue metadata, video statistics, and merch
// supply counts from external services into the store, keeping source health
// and confidence current after every pass.
package syncsvc

import (
	"strings"

	"github.com/brewsignal/brewsignal/internal/models"
)

// minMatchLen is the shortest substring allowed to count as a title match.
// Single-character overlaps produce false positives in CJK text (蓮 matching
// 蓮華), so the matching side must carry at least two characters.
const minMatchLen = 2

// TitleMatch reports whether a search term and a candidate title refer to the
// same work: either string must contain the other after lowering and
// trimming, and the contained side must be at least minMatchLen runes.
func TitleMatch(term, title string) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	c := strings.ToLower(strings.TrimSpace(title))
	if t == "" || c == "" {
		return false
	}
	if len([]rune(t)) >= minMatchLen && strings.Contains(c, t) {
		return true
	}
	if len([]rune(c)) >= minMatchLen && strings.Contains(t, c) {
		return true
	}
	return false
}

// MatchesAnyTitle runs TitleMatch against every known title of a catalogue
// entry.
func MatchesAnyTitle(term string, titles []string) bool {
	for _, title := range titles {
		if TitleMatch(term, title) {
			return true
		}
	}
	return false
}

// ContainsAlias reports whether a video title mentions any of the IP's
// surface forms. One-directional: the alias must appear inside the title.
func ContainsAlias(aliases []string, videoTitle string) bool {
	title := strings.ToLower(strings.TrimSpace(videoTitle))
	for _, alias := range aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if len([]rune(a)) >= minMatchLen && strings.Contains(title, a) {
			return true
		}
	}
	return false
}

// SearchTerms orders the IP name and alias texts for querying an external
// service: aliases are tiered by the position of their locale in
// priorityLocales, followed by the name and any remaining aliases.
// Duplicates are dropped, order is otherwise preserved.
func SearchTerms(name string, aliases []models.Alias, priorityLocales ...string) []string {
	rank := make(map[string]int, len(priorityLocales))
	for i, l := range priorityLocales {
		rank[l] = i
	}

	tiers := make([][]string, len(priorityLocales))
	seen := map[string]bool{name: true}
	rest := []string{name}
	for _, a := range aliases {
		if seen[a.Alias] {
			continue
		}
		seen[a.Alias] = true
		if i, ok := rank[a.Locale]; ok {
			tiers[i] = append(tiers[i], a.Alias)
		} else {
			rest = append(rest, a.Alias)
		}
	}

	var out []string
	for _, tier := range tiers {
		out = append(out, tier...)
	}
	return append(out, rest...)
}
