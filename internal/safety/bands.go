package safety

import "fmt"

// AgeBand is a contiguous range of child ages sharing the same restricted
// categories and thresholds.
type AgeBand struct {
	Name   string
	MinAge int
	MaxAge int

	// ForbiddenCategories are topic categories the age layer treats as
	// violations for children in this band.
	ForbiddenCategories []string

	// MaxAvgWordLength is the vocabulary complexity ceiling for the band.
	MaxAvgWordLength float64
}

// Bands are ordered youngest first and must cover ages 1..18 with no gaps.
// Younger bands forbid supersets of what older bands forbid, which is what
// makes risk monotone in decreasing age.
var bands = []AgeBand{
	{
		Name:   "toddler",
		MinAge: 1, MaxAge: 4,
		ForbiddenCategories: []string{"violence", "scary", "adult_themes", "complex_emotions", "mature_themes"},
		MaxAvgWordLength:    5.5,
	},
	{
		Name:   "early_childhood",
		MinAge: 5, MaxAge: 6,
		ForbiddenCategories: []string{"adult_themes", "complex_emotions", "mature_themes"},
		MaxAvgWordLength:    6.5,
	},
	{
		Name:   "middle_childhood",
		MinAge: 7, MaxAge: 8,
		ForbiddenCategories: []string{"adult_themes", "mature_themes"},
		MaxAvgWordLength:    7.5,
	},
	{
		Name:   "preteen",
		MinAge: 9, MaxAge: 12,
		ForbiddenCategories: []string{"mature_themes"},
		MaxAvgWordLength:    9,
	},
	{
		Name:   "teen",
		MinAge: 13, MaxAge: 18,
		ForbiddenCategories: nil,
		MaxAvgWordLength:    12,
	},
}

// bandFor resolves the band for an age. Ages outside 1..18 are treated as
// the most restrictive band: an unknown age cannot prove a laxer one.
func bandFor(age int) AgeBand {
	for _, b := range bands {
		if age >= b.MinAge && age <= b.MaxAge {
			return b
		}
	}
	return bands[0]
}

// Bands returns the configured age bands, youngest first.
func Bands() []AgeBand {
	out := make([]AgeBand, len(bands))
	copy(out, bands)
	return out
}

// validateBands checks the band table is contiguous and total over 1..18.
// Called once at engine construction; a malformed table is a startup error.
func validateBands() error {
	if len(bands) == 0 {
		return fmt.Errorf("config invalid: no age bands defined")
	}
	if bands[0].MinAge != 1 {
		return fmt.Errorf("config invalid: first age band starts at %d, want 1", bands[0].MinAge)
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].MinAge != bands[i-1].MaxAge+1 {
			return fmt.Errorf("config invalid: gap between age bands %q and %q", bands[i-1].Name, bands[i].Name)
		}
	}
	if last := bands[len(bands)-1]; last.MaxAge != 18 {
		return fmt.Errorf("config invalid: last age band ends at %d, want 18", last.MaxAge)
	}
	return nil
}
