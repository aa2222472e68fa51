// Package fuzzy provides loose name matching for filtering rom listings
package fuzzy

import (
	"sort"
	"strings"

	"romm-downloader/pkg/models"
)

// Matcher scores roms against a free-form search query
type Matcher struct{}

// NewMatcher creates a new fuzzy matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// FilterRoms returns the roms matching query, best match first. An empty
// query returns the input unchanged.
func (m *Matcher) FilterRoms(roms []models.Rom, query string) []models.Rom {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return roms
	}

	type scoredRom struct {
		rom   models.Rom
		score float64
	}

	var scored []scoredRom
	for _, rom := range roms {
		score := m.score(rom, query)
		if score > 0 {
			scored = append(scored, scoredRom{rom: rom, score: score})
		}
	}

	// stable sort keeps the catalog's name ordering for equal scores
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	matches := make([]models.Rom, len(scored))
	for i, sr := range scored {
		matches[i] = sr.rom
	}

	return matches
}

// score rates a rom against the query using whichever of its display name
// and filesystem name matches better
func (m *Matcher) score(rom models.Rom, query string) float64 {
	nameScore := m.calculateScore(rom.Name, query)
	fileScore := m.calculateScore(rom.FSName, query)
	if fileScore > nameScore {
		return fileScore
	}
	return nameScore
}

// calculateScore rates how well name matches query. An exact match scores 1,
// a substring match scores by how much of the name the query covers, and a
// scattered match requires every query word to appear in some name word.
func (m *Matcher) calculateScore(name, query string) float64 {
	name = strings.ToLower(name)
	if name == "" {
		return 0.0
	}

	if name == query {
		return 1.0
	}

	if strings.Contains(name, query) {
		return float64(len(query)) / float64(len(name))
	}

	nameWords := splitWords(name)
	queryWords := splitWords(query)
	if len(nameWords) == 0 || len(queryWords) == 0 {
		return 0.0
	}

	matched := 0
	for _, queryWord := range queryWords {
		for _, nameWord := range nameWords {
			if strings.Contains(nameWord, queryWord) {
				matched++
				break
			}
		}
	}

	// a single missing query word disqualifies the rom entirely
	if matched < len(queryWords) {
		return 0.0
	}

	return float64(matched) / float64(len(nameWords))
}

// splitWords breaks a name on the separators common in rom filenames
func splitWords(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' ' || r == ',' || r == '(' || r == ')' || r == '[' || r == ']'
	})
}
