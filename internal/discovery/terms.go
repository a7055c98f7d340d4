package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// Terms are the search terms scanned per category when no term is given.
var Terms = map[string][]string{
	"electronics": {
		"laptop", "macbook", "ipad", "iphone", "tablet", "monitor", "tv",
		"headphones", "airpods", "camera", "drone", "gaming", "playstation",
		"xbox", "nintendo", "smartwatch", "speaker", "projector",
	},
	"tools": {
		"drill", "impact driver", "saw", "tool set", "compressor",
		"pressure washer", "generator", "welder", "tool chest",
	},
	"home": {
		"vacuum", "air fryer", "espresso", "mixer", "instant pot",
		"mattress", "sofa", "rug", "air purifier", "dyson",
	},
	"outdoor": {
		"grill", "smoker", "kayak", "bike", "lawn mower", "patio",
		"camping", "trolling motor",
	},
	"brands": {
		"apple", "samsung", "sony", "bose", "dewalt", "milwaukee",
		"makita", "kitchenaid", "vitamix", "yeti", "traeger", "lg",
	},
}

// Categories returns the known category names in order.
func Categories() []string {
	out := make([]string, 0, len(Terms))
	for category := range Terms {
		out = append(out, category)
	}
	slices.Sort(out)
	return out
}

// ResolveTerms merges explicit terms with the terms of each category,
// dropping duplicates while keeping order. With neither it returns every
// category's terms.
func ResolveTerms(explicit, categories []string) ([]string, error) {
	if len(explicit) == 0 && len(categories) == 0 {
		categories = Categories()
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	for _, term := range explicit {
		add(term)
	}
	for _, category := range categories {
		terms, ok := Terms[strings.ToLower(category)]
		if !ok {
			return nil, fmt.Errorf("unknown category %q, expected one of %s", category, strings.Join(Categories(), ", "))
		}
		for _, term := range terms {
			add(term)
		}
	}
	return out, nil
}
