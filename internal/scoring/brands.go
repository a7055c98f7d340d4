package scoring

import (
	"lotwatch/lib/textutil"

	"github.com/antzucaro/matchr"
)

// PremiumBrands resell well enough that a lot from them is worth a closer look.
var PremiumBrands = []string{
	"apple", "samsung", "sony", "bose", "lg", "dyson",
	"dewalt", "milwaukee", "makita", "ryobi", "bosch", "craftsman",
	"kitchenaid", "vitamix", "ninja", "keurig", "breville", "cuisinart",
	"yeti", "traeger", "weber", "solo stove", "igloo",
	"nintendo", "playstation", "xbox", "lego", "ring", "roku",
}

const DefaultBrandThreshold = 0.92

// BrandMatcher fuzzy matches a lot's brand or title against a brand list.
type BrandMatcher struct {
	Threshold float64
	brands    []string
}

func NewBrandMatcher(brands []string) BrandMatcher {
	normalized := make([]string, 0, len(brands))
	for _, b := range brands {
		n := textutil.NormalizeName(b)
		if n != "" {
			normalized = append(normalized, n)
		}
	}
	return BrandMatcher{Threshold: DefaultBrandThreshold, brands: normalized}
}

func (m BrandMatcher) exact(candidate string) (string, bool) {
	for _, b := range m.brands {
		if candidate == b {
			return b, true
		}
	}
	return "", false
}

func (m BrandMatcher) similar(candidate string) (string, bool) {
	if candidate == "" {
		return "", false
	}
	var best string
	var bestScore float64
	for _, b := range m.brands {
		if candidate == b {
			return b, true
		}
		score := matchr.JaroWinkler(candidate, b, false)
		if score > bestScore {
			bestScore = score
			best = b
		}
	}
	return best, bestScore >= m.Threshold
}

// Match returns the premium brand matched by either the explicit brand or a
// word (or adjacent word pair) of the title.
func (m BrandMatcher) Match(brand, title string) (string, bool) {
	if matched, ok := m.similar(textutil.NormalizeName(brand)); ok {
		return matched, true
	}

	words := textutil.Words(title)
	for i, w := range words {
		// short words fuzzy match far too many brands, so they must be exact
		if len(w) <= 2 {
			if matched, ok := m.exact(w); ok {
				return matched, true
			}
		} else if matched, ok := m.similar(w); ok {
			return matched, true
		}
		if i+1 < len(words) {
			if matched, ok := m.similar(w + words[i+1]); ok {
				return matched, true
			}
		}
	}
	return "", false
}
