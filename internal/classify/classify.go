package classify

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Flags are the derived booleans attached to every job record.
type Flags struct {
	OfficialSite    bool `json:"official_site"`
	ExperienceMatch bool `json:"experience_match"`
}

// Classifier evaluates two independent keyword heuristics: whether listing
// text mentions an entry-level experience range, and whether a link points at
// a company career page or a known applicant tracking system.
//
// Both checks are case-insensitive substring matches. They are heuristics, so
// false positives such as "11 years" matching "1 year" are accepted.
type Classifier struct {
	experience []string
	official   []string
}

// New builds a Classifier. Keywords are folded once up front; blank entries
// are dropped because an empty needle would match every input.
func New(experienceKeywords, officialPatterns []string) *Classifier {
	return &Classifier{
		experience: foldAll(experienceKeywords),
		official:   foldAll(officialPatterns),
	}
}

// ExperienceMatch reports whether text contains any experience keyword.
func (c *Classifier) ExperienceMatch(text string) bool {
	return containsAny(fold(text), c.experience)
}

// IsOfficialSite reports whether link contains any official-site pattern.
func (c *Classifier) IsOfficialSite(link string) bool {
	return containsAny(fold(link), c.official)
}

// Classify derives the flags for one listing. Experience is judged on the
// title and snippet together, official-site on the link alone.
func (c *Classifier) Classify(title, snippet, link string) Flags {
	return Flags{
		OfficialSite:    c.IsOfficialSite(link),
		ExperienceMatch: c.ExperienceMatch(title + " " + snippet),
	}
}

func containsAny(text string, needles []string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// fold maps compatibility characters (non-breaking spaces, full-width digits)
// to their plain forms before lowercasing.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func foldAll(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		x = fold(strings.TrimSpace(x))
		if x == "" {
			continue
		}
		out = append(out, x)
	}
	return out
}
