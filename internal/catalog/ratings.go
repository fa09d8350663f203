package catalog

import "strings"

// knownRatings maps a squeezed (lowercase, alphanumerics only) rating
// string to its canonical label. The upstream spells the same rating
// several ways ("TV-14", "TV14", "tv-14"); squeezing before lookup folds
// them together.
var knownRatings = map[string]string{
	"tvy":     "TV-Y",
	"tvy7":    "TV-Y7",
	"tvy7fv":  "TV-Y7-FV",
	"tvg":     "TV-G",
	"tvpg":    "TV-PG",
	"tv14":    "TV-14",
	"tvma":    "TV-MA",
	"g":       "G",
	"pg":      "PG",
	"pg13":    "PG-13",
	"r":       "R",
	"nc17":    "NC-17",
	"nr":      "NR",
	"unrated": "Unrated",
}

// NormalizeRating canonicalizes an upstream rating string. Unknown
// values normalize to the empty string (no rating) rather than failing.
func NormalizeRating(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if canon, ok := knownRatings[squeezeRating(raw)]; ok {
		return canon
	}
	return ""
}

// RatingSystem names the XMLTV rating system for a normalized label:
// "VCHIP" for TV Parental Guidelines, "MPAA" for film ratings, "" for
// anything unclassifiable.
func RatingSystem(label string) string {
	switch label {
	case "TV-Y", "TV-Y7", "TV-Y7-FV", "TV-G", "TV-PG", "TV-14", "TV-MA":
		return "VCHIP"
	case "G", "PG", "PG-13", "R", "NC-17", "NR", "Unrated":
		return "MPAA"
	}
	return ""
}

func squeezeRating(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
