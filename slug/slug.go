package slug

import (
	"regexp"
	"strings"

	"tinyclassified/models"
)

// EscapedSlash stands in for "/" inside a segment so it cannot split a path.
const EscapedSlash = "_slash_"

var qualifiedSlug = regexp.MustCompile(`^[\w-]+/[\w-]+/[\w@.-]+$`)

var accentMap = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
	'ç': 'c', 'ć': 'c', 'č': 'c',
	'ñ': 'n', 'ń': 'n',
	'ý': 'y', 'ÿ': 'y',
	'Á': 'A', 'À': 'A', 'Ã': 'A', 'Â': 'A', 'Ä': 'A', 'Å': 'A', 'Ā': 'A',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E', 'Ē': 'E',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I', 'Ī': 'I',
	'Ó': 'O', 'Ò': 'O', 'Õ': 'O', 'Ô': 'O', 'Ö': 'O', 'Ø': 'O', 'Ō': 'O',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U', 'Ū': 'U',
	'Ç': 'C', 'Ć': 'C', 'Č': 'C',
	'Ñ': 'N', 'Ń': 'N',
	'Ý': 'Y', 'Ÿ': 'Y',
}

// MakeSegmentSafe turns a category or subcategory into a URL path segment.
// Case is preserved.
func MakeSegmentSafe(text string) string {
	return makeSafe(text, "")
}

// MakeNameSafe is MakeSegmentSafe for the last slug segment, which may
// also carry "@" and "." so that email-derived names survive.
func MakeNameSafe(text string) string {
	return makeSafe(text, "@.")
}

func makeSafe(text, extra string) string {
	text = strings.ReplaceAll(text, "/", EscapedSlash)
	safe := strings.Map(func(r rune) rune {
		if replacement, ok := accentMap[r]; ok {
			r = replacement
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		case r == ' ' || r == '\t':
			return '-'
		case strings.ContainsRune(extra, r):
			return r
		}
		return -1
	}, text)

	if safe == "" {
		return "_"
	}
	return safe
}

// BuildSlug joins the three safe segments with "/".
func BuildSlug(category, subcategory, name string) string {
	return MakeSegmentSafe(category) + "/" + MakeSegmentSafe(subcategory) + "/" + MakeNameSafe(name)
}

// RecomputeSlugs replaces listing.Slugs with one slug per (category,
// subcategory) pair in tag order. Duplicate pairs produce duplicate slugs.
func RecomputeSlugs(listing *models.Listing) {
	slugs := make([]string, 0, listing.Tags.PairCount())
	for _, category := range listing.Tags {
		for _, subcategory := range category.Subcategories {
			slugs = append(slugs, BuildSlug(category.Name, subcategory, listing.Name))
		}
	}
	listing.Slugs = slugs
}

// IsQualified reports whether s names a single listing
// ("category/subcategory/name") rather than a category prefix.
func IsQualified(s string) bool {
	return qualifiedSlug.MatchString(s)
}

// CollectCategoryIndex merges tag maps into one, keeping the first-seen
// order of categories and subcategories and dropping repeated subcategories.
func CollectCategoryIndex(tagMaps []models.Tags) models.Tags {
	index := models.Tags{}
	for _, tags := range tagMaps {
		for _, category := range tags {
			if _, ok := index.Get(category.Name); !ok {
				index.Add(category.Name)
			}
			for _, subcategory := range category.Subcategories {
				existing, _ := index.Get(category.Name)
				if !contains(existing, subcategory) {
					index.Add(category.Name, subcategory)
				}
			}
		}
	}
	return index
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
