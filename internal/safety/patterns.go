package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// PatternCategory is one group of keywords sharing a risk level and an age
// restriction range. A category is active for a request only when the
// child's age falls inside [MinAge, MaxAge].
type PatternCategory struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Risk     string   `json:"risk_level"`
	Weight   float64  `json:"weight"`
	MinAge   int      `json:"min_age"`
	MaxAge   int      `json:"max_age"`
}

// PatternMatch is a single category hit from a scan.
type PatternMatch struct {
	PatternID string
	Category  string
	Keyword   string
	Risk      RiskLevel
	Weight    float64
}

type patternMeta struct {
	category string
	keyword  string
	risk     RiskLevel
	weight   float64
}

type bandMatcher struct {
	matcher *ahocorasick.Matcher
	meta    []patternMeta
}

// PatternIndex holds one Aho-Corasick automaton per age band, built once at
// configuration load. Scanning is linear in text length plus total pattern
// length regardless of how many keywords are configured.
type PatternIndex struct {
	byBand map[string]*bandMatcher
}

// NewPatternIndex partitions categories by age band and compiles one
// automaton per band from the categories active for that band.
func NewPatternIndex(categories []PatternCategory) (*PatternIndex, error) {
	idx := &PatternIndex{byBand: make(map[string]*bandMatcher, len(bands))}

	for _, band := range bands {
		var dict []string
		var meta []patternMeta
		for _, cat := range categories {
			if cat.MaxAge < band.MinAge || cat.MinAge > band.MaxAge {
				continue
			}
			risk, err := parseRisk(cat.Risk)
			if err != nil {
				return nil, fmt.Errorf("pattern category %q: %w", cat.Name, err)
			}
			for _, kw := range cat.Keywords {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw == "" {
					continue
				}
				dict = append(dict, kw)
				meta = append(meta, patternMeta{
					category: cat.Name,
					keyword:  kw,
					risk:     risk,
					weight:   cat.Weight,
				})
			}
		}
		idx.byBand[band.Name] = &bandMatcher{
			matcher: ahocorasick.NewStringMatcher(dict),
			meta:    meta,
		}
	}

	return idx, nil
}

// Scan runs the automaton for the child's age band over text and returns
// the matched categories. Pure function over the immutable index.
func (idx *PatternIndex) Scan(text string, childAge int) []PatternMatch {
	band := bandFor(childAge)
	bm := idx.byBand[band.Name]
	if bm == nil || len(bm.meta) == 0 {
		return nil
	}

	hits := bm.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(hits))
	matches := make([]PatternMatch, 0, len(hits))
	for _, i := range hits {
		m := bm.meta[i]
		if seen[m.category] {
			continue
		}
		seen[m.category] = true
		matches = append(matches, PatternMatch{
			PatternID: m.category + ":" + m.keyword,
			Category:  m.category,
			Keyword:   m.keyword,
			Risk:      m.risk,
			Weight:    m.weight,
		})
	}
	return matches
}

func parseRisk(s string) (RiskLevel, error) {
	for level, name := range riskNames {
		if name == s {
			return level, nil
		}
	}
	return RiskSafe, fmt.Errorf("unknown risk level %q", s)
}

// DefaultPatternCategories returns the built-in age-scoped keyword sets.
// A JSON file in the same shape can replace them via LoadPatternCategories.
func DefaultPatternCategories() []PatternCategory {
	return []PatternCategory{
		{
			Name: "violence",
			Keywords: []string{
				"violence", "violent", "kill", "killing", "murder", "weapon",
				"gun", "knife", "blood", "bleeding out", "fight", "punch", "stab",
			},
			Risk: "critical", Weight: 0.9, MinAge: 1, MaxAge: 18,
		},
		{
			Name: "scary",
			Keywords: []string{
				"scary", "nightmare", "terror", "horror", "monster under",
				"ghost", "haunted",
			},
			Risk: "high", Weight: 0.65, MinAge: 1, MaxAge: 6,
		},
		{
			Name: "adult_themes",
			Keywords: []string{
				"dating", "boyfriend", "girlfriend", "kissing", "romance",
				"marriage", "sexy",
			},
			Risk: "medium", Weight: 0.5, MinAge: 1, MaxAge: 8,
		},
		{
			Name: "negative_language",
			Keywords: []string{
				"hate you", "stupid", "dumb", "ugly", "loser", "worthless",
				"nobody likes you",
			},
			Risk: "medium", Weight: 0.5, MinAge: 1, MaxAge: 12,
		},
		{
			Name: "substances",
			Keywords: []string{
				"drugs", "alcohol", "smoking", "cigarette", "beer", "vaping",
			},
			Risk: "high", Weight: 0.7, MinAge: 1, MaxAge: 18,
		},
		{
			Name: "privacy_probe",
			Keywords: []string{
				"where do you live", "your address", "home address",
				"phone number", "what school", "your last name", "full name",
				"our secret", "don't tell your parents", "password",
			},
			Risk: "critical", Weight: 0.95, MinAge: 1, MaxAge: 18,
		},
		{
			Name: "self_harm",
			Keywords: []string{
				"want to die", "suicide", "hurt myself", "kill myself",
			},
			Risk: "critical", Weight: 1.0, MinAge: 1, MaxAge: 18,
		},
	}
}

// LoadPatternCategories reads a JSON array of categories from path.
func LoadPatternCategories(path string) ([]PatternCategory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	var categories []PatternCategory
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("pattern file %s: no categories", path)
	}
	return categories, nil
}
